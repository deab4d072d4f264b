package endpoint

import (
	"context"
)

// Pipe connects two endpoints living in the same process, each becoming the
// other's peer. Byte buffers are copied at the boundary so neither side can
// observe the other's mutations, preserving the no-shared-memory contract a
// real transport would enforce.
func Pipe(a, b *Endpoint) {
	a.Connect(pipeChannel{peer: b})
	b.Connect(pipeChannel{peer: a})
}

type pipeChannel struct {
	peer *Endpoint
}

func (c pipeChannel) Invoke(ctx context.Context, instanceName, functionName string, encodedArguments []byte) ([]byte, error) {
	out, err := c.peer.Invoke(ctx, instanceName, functionName, cloneBytes(encodedArguments))
	return cloneBytes(out), err
}

func (c pipeChannel) InvokeSuspending(ctx context.Context, instanceName, functionName string, encodedArguments []byte, callbackName string) error {
	return c.peer.InvokeSuspending(ctx, instanceName, functionName, cloneBytes(encodedArguments), callbackName)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
