package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goooler/zipline/callchannel"
)

func TestCallSuspendingRoundTrip(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("slow", ServiceFunc(func(_ context.Context, _ string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		time.Sleep(5 * time.Millisecond)
		return args[0], nil
	})))

	got, err := caller.CallSuspending(context.Background(), "slow", "echo", []callchannel.EncodedValue{callchannel.EncodedValue(`"later"`)})
	require.NoError(t, err)
	assert.Equal(t, callchannel.EncodedValue(`"later"`), got)
}

func TestCallSuspendingExceptionPropagation(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("svc", ServiceFunc(func(context.Context, string, []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		return nil, errors.New("async boom")
	})))

	_, err := caller.CallSuspending(context.Background(), "svc", "fn", nil)
	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "async boom", remote.Message)
}

func TestCallSuspendingUnboundInstance(t *testing.T) {
	caller, _ := newTestPair(t)

	// The binding error must travel to the callback, never be dropped.
	_, err := caller.CallSuspending(context.Background(), "nonexistent", "fn", nil)
	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "nonexistent")
}

func TestCallSuspendingContextCancellation(t *testing.T) {
	caller, callee := newTestPair(t)
	parked := make(chan struct{})
	t.Cleanup(func() { close(parked) })
	require.NoError(t, callee.Bind("hang", ServiceFunc(func(context.Context, string, []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		<-parked // does not call back while the caller waits
		return nil, nil
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := caller.CallSuspending(ctx, "hang", "fn", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestSuspendCallbackManualDelivery drives the callback protocol at the
// wire level: a suspending call followed by a plain invoke of
// callback.deliver carrying the framed result must resume the waiting
// caller with exactly that result, exactly once.
func TestSuspendCallbackManualDelivery(t *testing.T) {
	caller, err := New(WithNamePrefix("caller"))
	require.NoError(t, err)

	// Capture the suspending call instead of dispatching it anywhere.
	calls := make(chan string, 1)
	caller.Connect(captureChannel{callbacks: calls})

	type outcome struct {
		value callchannel.EncodedValue
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := caller.CallSuspending(context.Background(), "svc", "fn", nil)
		done <- outcome{v, err}
	}()
	callbackName := <-calls

	result := callchannel.Result{Kind: callchannel.ResultNormal, Value: callchannel.EncodedValue(`"delivered"`)}
	payload := callchannel.EncodedValue(callchannel.EncodeResult(result))
	resp, err := caller.Invoke(context.Background(), callbackName, callchannel.CallbackFunction,
		callchannel.EncodeArguments([]callchannel.EncodedValue{payload}))
	require.NoError(t, err)
	delivered, err := callchannel.DecodeResult(resp)
	require.NoError(t, err)
	assert.Equal(t, callchannel.ResultNormal, delivered.Kind)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, callchannel.EncodedValue(`"delivered"`), got.value)
}

func TestSuspendCallbackRejectsBadDeliveries(t *testing.T) {
	cb := newSuspendCallback()
	ctx := context.Background()

	_, err := cb.Call(ctx, "unknown", nil)
	assert.Error(t, err)

	_, err = cb.Call(ctx, callchannel.CallbackFunction, nil)
	assert.Error(t, err)

	_, err = cb.Call(ctx, callchannel.CallbackFunction, []callchannel.EncodedValue{nil})
	assert.Error(t, err)

	_, err = cb.Call(ctx, callchannel.CallbackFunction, []callchannel.EncodedValue{callchannel.EncodedValue{0xff}})
	assert.Error(t, err)
}

func TestSuspendCallbackSecondDeliveryRejected(t *testing.T) {
	cb := newSuspendCallback()
	ctx := context.Background()
	payload := callchannel.EncodedValue(callchannel.EncodeResult(callchannel.Result{Kind: callchannel.ResultNormal}))

	_, err := cb.Call(ctx, callchannel.CallbackFunction, []callchannel.EncodedValue{payload})
	require.NoError(t, err)

	_, err = cb.Call(ctx, callchannel.CallbackFunction, []callchannel.EncodedValue{payload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already delivered")
}

// captureChannel records suspending calls' callback names and answers
// nothing, standing in for a peer that has not responded yet.
type captureChannel struct {
	callbacks chan string
}

func (c captureChannel) Invoke(context.Context, string, string, []byte) ([]byte, error) {
	return nil, errors.New("capture channel: no synchronous peer")
}

func (c captureChannel) InvokeSuspending(_ context.Context, _, _ string, _ []byte, callbackName string) error {
	c.callbacks <- callbackName
	return nil
}
