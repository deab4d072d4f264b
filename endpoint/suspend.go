package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/Goooler/zipline/callchannel"
)

// suspendCallback is the transient service bound under a generated name by
// CallSuspending. It accepts exactly one "deliver" invocation carrying the
// framed result, resumes the waiting caller, and rejects anything after
// that. Delivery may arrive from any goroutine.
type suspendCallback struct {
	delivered chan callchannel.Result
	once      sync.Once
}

func newSuspendCallback() *suspendCallback {
	return &suspendCallback{delivered: make(chan callchannel.Result, 1)}
}

// Call implements Service.
func (c *suspendCallback) Call(_ context.Context, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	if functionName != callchannel.CallbackFunction {
		return nil, fmt.Errorf("suspend callback: unknown function %q", functionName)
	}
	if len(args) != 1 || args[0].IsNull() {
		return nil, fmt.Errorf("suspend callback: %s expects one encoded result", callchannel.CallbackFunction)
	}
	result, err := callchannel.DecodeResult(args[0])
	if err != nil {
		return nil, fmt.Errorf("suspend callback: %w", err)
	}
	accepted := false
	c.once.Do(func() {
		c.delivered <- result
		accepted = true
	})
	if !accepted {
		return nil, fmt.Errorf("suspend callback: result already delivered")
	}
	return nil, nil
}
