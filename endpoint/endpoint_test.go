package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Goooler/zipline/callchannel"
)

// echoService returns its first argument unchanged.
var echoService = ServiceFunc(func(_ context.Context, _ string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
})

func newTestPair(t *testing.T) (caller, callee *Endpoint) {
	t.Helper()
	caller, err := New(WithNamePrefix("caller"))
	require.NoError(t, err)
	callee, err = New(WithNamePrefix("callee"))
	require.NoError(t, err)
	Pipe(caller, callee)
	return caller, callee
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(WithNamePrefix(""))
	assert.Error(t, err)

	_, err = New(WithNamePrefix("has space"))
	assert.Error(t, err)
}

func TestGenerateNameUniqueness(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	names := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				names <- e.GenerateName()
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool, workers*perWorker)
	for name := range names {
		assert.False(t, seen[name], "name %q generated twice", name)
		seen[name] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestBindDuplicateFailsFast(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	require.NoError(t, e.Bind("svc", echoService))
	err = e.Bind("svc", echoService)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already bound")
}

func TestBindRejectsEmptyNameAndNilService(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	assert.Error(t, e.Bind("", echoService))
	assert.Error(t, e.Bind("svc", nil))
}

func TestServiceNamesSorted(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	require.NoError(t, e.Bind("b", echoService))
	require.NoError(t, e.Bind("a", echoService))
	require.NoError(t, e.Bind("c", echoService))

	assert.Equal(t, []string{"a", "b", "c"}, e.ServiceNames())
}

func TestBindModelSchema(t *testing.T) {
	type swapArgs struct {
		Message string `json:"message"`
	}
	e, err := New()
	require.NoError(t, err)

	require.NoError(t, e.BindModel("swap", echoService, &swapArgs{}))

	schema, ok := e.Schema("swap")
	require.True(t, ok)
	assert.Contains(t, schema, "message")

	_, ok = e.Schema("missing")
	assert.False(t, ok)
}

func TestCallRoundTrip(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("echo", echoService))

	got, err := caller.Call(context.Background(), "echo", "echo", []callchannel.EncodedValue{callchannel.EncodedValue(`"hi"`)})
	require.NoError(t, err)
	assert.Equal(t, callchannel.EncodedValue(`"hi"`), got)
}

func TestCallUnboundInstance(t *testing.T) {
	caller, _ := newTestPair(t)

	// The transport itself must not fail; the binding error arrives as an
	// Exception-kind result re-raised on the caller.
	_, err := caller.Call(context.Background(), "nonexistent", "fn", nil)
	require.Error(t, err)

	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "nonexistent")
}

func TestCallExceptionPropagation(t *testing.T) {
	caller, callee := newTestPair(t)
	thrown := errors.New("lookup failed: record not found")
	require.NoError(t, callee.Bind("svc", ServiceFunc(func(context.Context, string, []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		return nil, thrown
	})))

	_, err := caller.Call(context.Background(), "svc", "fn", nil)
	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, thrown.Error(), remote.Message)
}

func TestCallPanicRecovery(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("svc", ServiceFunc(func(context.Context, string, []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		panic("callee exploded")
	})))

	_, err := caller.Call(context.Background(), "svc", "fn", nil)
	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "callee exploded")
}

func TestCallValidationRejectsEmptyNames(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("svc", echoService))

	_, err := caller.Call(context.Background(), "", "fn", nil)
	var remote *callchannel.RemoteError
	require.ErrorAs(t, err, &remote)

	_, err = caller.Call(context.Background(), "svc", "", nil)
	require.ErrorAs(t, err, &remote)
}

func TestInvokeMalformedArgumentsIsExceptionResult(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	require.NoError(t, e.Bind("svc", echoService))

	resp, err := e.Invoke(context.Background(), "svc", "fn", []byte{0, 0})
	require.NoError(t, err)

	result, err := callchannel.DecodeResult(resp)
	require.NoError(t, err)
	assert.Equal(t, callchannel.ResultException, result.Kind)
}

func TestCallWithoutPeer(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.Call(context.Background(), "svc", "fn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestCallManyArgumentsIncludingNull(t *testing.T) {
	caller, callee := newTestPair(t)
	require.NoError(t, callee.Bind("count", ServiceFunc(func(_ context.Context, _ string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
		nulls := 0
		for _, a := range args {
			if a.IsNull() {
				nulls++
			}
		}
		return callchannel.EncodedValue(fmt.Sprintf("[%d,%d]", len(args), nulls)), nil
	})))

	got, err := caller.Call(context.Background(), "count", "count", []callchannel.EncodedValue{
		callchannel.EncodedValue(`1`), nil, callchannel.EncodedValue(`2`), nil, nil,
	})
	require.NoError(t, err)
	assert.Equal(t, callchannel.EncodedValue(`[5,3]`), got)
}
