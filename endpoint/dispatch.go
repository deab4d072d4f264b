package endpoint

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Goooler/zipline/callchannel"
)

// callEnvelope is validated before lookup when call validation is enabled.
type callEnvelope struct {
	Instance string `validate:"required"`
	Function string `validate:"required"`
}

// Invoke implements the receiving side of callchannel.CallChannel: it
// decodes the argument frame, dispatches to the bound service, and frames
// the result. Every failure the caller can act on, including an unknown
// instance name, is reported as an Exception-kind result rather than an
// error return.
func (e *Endpoint) Invoke(ctx context.Context, instanceName, functionName string, encodedArguments []byte) ([]byte, error) {
	args, err := callchannel.DecodeArguments(encodedArguments)
	if err != nil {
		e.config.Logger.Warn("malformed argument frame", "instance", instanceName, "err", err)
		return callchannel.EncodeResult(e.exception(fmt.Errorf("malformed arguments: %w", err))), nil
	}
	result := e.dispatch(ctx, instanceName, functionName, args)
	return callchannel.EncodeResult(result), nil
}

// InvokeSuspending implements the receiving side of a suspending call: the
// service runs on its own goroutine and the framed result is delivered to
// callbackName on the peer. The returned error covers only local failures
// before dispatch starts; everything later travels to the callback.
func (e *Endpoint) InvokeSuspending(ctx context.Context, instanceName, functionName string, encodedArguments []byte, callbackName string) error {
	if callbackName == "" {
		return fmt.Errorf("endpoint: suspending call to %q without a callback name", instanceName)
	}
	args, err := callchannel.DecodeArguments(encodedArguments)
	if err != nil {
		e.config.Logger.Warn("malformed argument frame", "instance", instanceName, "err", err)
		go e.deliver(context.WithoutCancel(ctx), callbackName, e.exception(fmt.Errorf("malformed arguments: %w", err)))
		return nil
	}
	// The caller's context may be canceled the moment InvokeSuspending
	// returns; the dispatch and the callback delivery outlive it.
	ctx = context.WithoutCancel(ctx)
	go func() {
		result := e.dispatch(ctx, instanceName, functionName, args)
		e.deliver(ctx, callbackName, result)
	}()
	return nil
}

func (e *Endpoint) dispatch(ctx context.Context, instanceName, functionName string, args []callchannel.EncodedValue) callchannel.Result {
	if e.config.ValidateCalls {
		env := callEnvelope{Instance: instanceName, Function: functionName}
		if err := validate.Struct(&env); err != nil {
			return e.exception(fmt.Errorf("invalid call: %w", err))
		}
	}
	svc, ok := e.lookup(instanceName)
	if !ok {
		e.config.Logger.Warn("call to unbound instance", "instance", instanceName, "function", functionName)
		return e.exception(fmt.Errorf("no service bound as %q", instanceName))
	}
	value, err := e.callService(ctx, svc, functionName, args)
	if err != nil {
		e.config.Logger.Debug("service call failed", "instance", instanceName, "function", functionName, "err", err)
		return e.exception(err)
	}
	return callchannel.Result{Kind: callchannel.ResultNormal, Value: value}
}

// callService invokes the service with panic recovery: a panicking callee
// must surface as an Exception-kind result, not tear down the channel.
func (e *Endpoint) callService(ctx context.Context, svc Service, functionName string, args []callchannel.EncodedValue) (value callchannel.EncodedValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.config.Logger.Error("panic in service call", "function", functionName, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in service call: %v", r)
		}
	}()
	return svc.Call(ctx, functionName, args)
}

// deliver sends a framed result to the suspend callback bound on the peer.
// A failed delivery cannot be reported to anyone; it is logged and dropped.
func (e *Endpoint) deliver(ctx context.Context, callbackName string, result callchannel.Result) {
	ch, err := e.outbound()
	if err != nil {
		e.config.Logger.Error("cannot deliver suspending result", "callback", callbackName, "err", err)
		return
	}
	payload := callchannel.EncodedValue(callchannel.EncodeResult(result))
	args := callchannel.EncodeArguments([]callchannel.EncodedValue{payload})
	resp, err := ch.Invoke(ctx, callbackName, callchannel.CallbackFunction, args)
	if err != nil {
		e.config.Logger.Error("suspending delivery failed", "callback", callbackName, "err", err)
		return
	}
	if r, err := callchannel.DecodeResult(resp); err != nil {
		e.config.Logger.Error("suspending delivery returned malformed result", "callback", callbackName, "err", err)
	} else if r.Kind == callchannel.ResultException {
		e.config.Logger.Error("suspending delivery rejected", "callback", callbackName)
	}
}

// exception encodes an error's string form as an Exception-kind result.
// Only the message crosses the boundary.
func (e *Endpoint) exception(err error) callchannel.Result {
	payload, encErr := e.config.Codec.Encode(err.Error())
	if encErr != nil {
		e.config.Logger.Error("failed to encode failure surrogate", "err", encErr)
		payload = nil
	}
	return callchannel.Result{Kind: callchannel.ResultException, Value: payload}
}
