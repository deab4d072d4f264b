package endpoint

import (
	"context"
	"fmt"

	"github.com/Goooler/zipline/callchannel"
)

// Call performs a synchronous round trip against a named instance on the
// peer. An Exception-kind result is re-raised as a *callchannel.RemoteError
// carrying the far side's message.
func (e *Endpoint) Call(ctx context.Context, instanceName, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	ch, err := e.outbound()
	if err != nil {
		return nil, err
	}
	data, err := ch.Invoke(ctx, instanceName, functionName, callchannel.EncodeArguments(args))
	if err != nil {
		return nil, fmt.Errorf("endpoint: call %s.%s: %w", instanceName, functionName, err)
	}
	result, err := callchannel.DecodeResult(data)
	if err != nil {
		return nil, fmt.Errorf("endpoint: call %s.%s: %w", instanceName, functionName, err)
	}
	return e.unwrapResult(result)
}

// CallSuspending performs an asynchronous round trip: it registers a
// one-shot callback under a generated name, issues the suspending call, and
// blocks until the peer delivers the result or ctx is done. Cancellation
// abandons the wait only; the issued call cannot be retracted. The protocol
// itself has no timeout: a peer that never calls back leaves the caller
// waiting until ctx expires.
func (e *Endpoint) CallSuspending(ctx context.Context, instanceName, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	ch, err := e.outbound()
	if err != nil {
		return nil, err
	}
	callbackName := e.GenerateName()
	callback := newSuspendCallback()
	if err := e.Bind(callbackName, callback); err != nil {
		return nil, err
	}
	defer e.unbind(callbackName)

	if err := ch.InvokeSuspending(ctx, instanceName, functionName, callchannel.EncodeArguments(args), callbackName); err != nil {
		return nil, fmt.Errorf("endpoint: suspending call %s.%s: %w", instanceName, functionName, err)
	}
	select {
	case result := <-callback.delivered:
		return e.unwrapResult(result)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Endpoint) unwrapResult(result callchannel.Result) (callchannel.EncodedValue, error) {
	if result.Kind == callchannel.ResultNormal {
		return result.Value, nil
	}
	var message string
	if result.Value.IsNull() {
		message = "remote call failed"
	} else if err := e.config.Codec.Decode(result.Value, &message); err != nil {
		return nil, fmt.Errorf("endpoint: undecodable failure surrogate: %w", err)
	}
	return nil, &callchannel.RemoteError{Message: message}
}
