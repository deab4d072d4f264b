package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/Goooler/zipline/callchannel"
)

// Guest exports required by the channel ABI.
const (
	exportAllocate         = "allocate"
	exportDeallocate       = "deallocate"
	exportInvoke           = "invoke"
	exportInvokeSuspending = "invoke_suspending"
)

// GuestChannel implements callchannel.CallChannel against a running guest
// module. Calls are serialized: the guest's execution context is
// single-threaded and its linear memory must not be entered reentrantly.
type GuestChannel struct {
	mu               sync.Mutex
	module           api.Module
	allocate         api.Function
	deallocate       api.Function
	invoke           api.Function
	invokeSuspending api.Function
}

func newGuestChannel(mod api.Module) (*GuestChannel, error) {
	ch := &GuestChannel{module: mod}
	for _, exp := range []struct {
		name string
		fn   *api.Function
	}{
		{exportAllocate, &ch.allocate},
		{exportDeallocate, &ch.deallocate},
		{exportInvoke, &ch.invoke},
		{exportInvokeSuspending, &ch.invokeSuspending},
	} {
		f := mod.ExportedFunction(exp.name)
		if f == nil {
			return nil, fmt.Errorf("host: guest does not export %q", exp.name)
		}
		*exp.fn = f
	}
	return ch, nil
}

// Invoke writes the framed call into guest memory, runs the guest's invoke
// export, and copies the framed result back out. The guest allocates the
// result buffer; it is deallocated once copied.
func (c *GuestChannel) Invoke(ctx context.Context, instanceName, functionName string, encodedArguments []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := callchannel.EncodeCall(instanceName, functionName, encodedArguments)
	ptr, err := c.writeFrame(ctx, frame)
	if err != nil {
		return nil, err
	}
	results, err := c.invoke.Call(ctx, uint64(ptr), uint64(len(frame)))
	if err != nil {
		return nil, fmt.Errorf("host: guest invoke: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("host: guest invoke returned nothing")
	}
	return c.readPacked(ctx, results[0])
}

// InvokeSuspending writes the framed suspending call into guest memory and
// runs the guest's invoke_suspending export. The result arrives later as a
// separate guest-initiated call against the callback name.
func (c *GuestChannel) InvokeSuspending(ctx context.Context, instanceName, functionName string, encodedArguments []byte, callbackName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := callchannel.EncodeSuspendingCall(instanceName, functionName, encodedArguments, callbackName)
	ptr, err := c.writeFrame(ctx, frame)
	if err != nil {
		return err
	}
	if _, err := c.invokeSuspending.Call(ctx, uint64(ptr), uint64(len(frame))); err != nil {
		return fmt.Errorf("host: guest invoke_suspending: %w", err)
	}
	return nil
}

// writeFrame allocates guest memory and copies the frame in. The guest owns
// the buffer and frees it after decoding the call.
func (c *GuestChannel) writeFrame(ctx context.Context, frame []byte) (uint32, error) {
	results, err := c.allocate.Call(ctx, uint64(len(frame)))
	if err != nil {
		return 0, fmt.Errorf("host: guest allocate: %w", err)
	}
	if len(results) == 0 || results[0] == 0 {
		return 0, fmt.Errorf("host: guest allocate returned no buffer")
	}
	ptr := uint32(results[0])
	if !c.module.Memory().Write(ptr, frame) {
		return 0, fmt.Errorf("host: write frame to guest memory")
	}
	return ptr, nil
}

// readPacked copies a guest-allocated buffer identified by a packed ptr/len
// out of linear memory and frees it.
func (c *GuestChannel) readPacked(ctx context.Context, packed uint64) ([]byte, error) {
	ptr, length := UnpackPtrLen(packed)
	if ptr == 0 || length == 0 {
		return nil, fmt.Errorf("host: guest returned no result")
	}
	data, ok := c.module.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("host: read result from guest memory")
	}
	out := make([]byte, length)
	copy(out, data)
	if _, err := c.deallocate.Call(ctx, uint64(ptr), uint64(length)); err != nil {
		return nil, fmt.Errorf("host: guest deallocate: %w", err)
	}
	return out, nil
}
