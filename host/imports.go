package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/Goooler/zipline/callchannel"
)

// HostModule is the import module name guests link against for the
// guest-to-host direction of the channel.
const HostModule = "zipline"

// registerChannelImports exposes the host side of the call channel to
// guests: "invoke" and "invoke_suspending" import functions that decode the
// guest's framed call and dispatch it into the host endpoint.
func (r *Runtime) registerChannelImports(ctx context.Context) error {
	builder := r.runtime.NewHostModuleBuilder(HostModule)

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, packed uint64) uint64 {
			frame, ok := readGuestFrame(m, packed)
			if !ok {
				r.logger.Error("unreadable guest call frame")
				return 0
			}
			instance, function, args, err := callchannel.DecodeCall(frame)
			if err != nil {
				r.logger.Warn("malformed guest call frame", "err", err)
				return 0
			}
			resp, err := r.endpoint.Invoke(ctx, instance, function, args)
			if err != nil {
				r.logger.Error("host dispatch failed", "instance", instance, "err", err)
				return 0
			}
			return writeGuestBuffer(ctx, m, resp)
		}).
		Export(exportInvoke)

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, packed uint64) {
			frame, ok := readGuestFrame(m, packed)
			if !ok {
				r.logger.Error("unreadable guest call frame")
				return
			}
			instance, function, args, callback, err := callchannel.DecodeSuspendingCall(frame)
			if err != nil {
				r.logger.Warn("malformed guest call frame", "err", err)
				return
			}
			if err := r.endpoint.InvokeSuspending(ctx, instance, function, args, callback); err != nil {
				r.logger.Error("host suspending dispatch failed", "instance", instance, "err", err)
			}
		}).
		Export(exportInvokeSuspending)

	_, err := builder.Instantiate(ctx)
	return err
}

func readGuestFrame(m api.Module, packed uint64) ([]byte, bool) {
	ptr, length := UnpackPtrLen(packed)
	if ptr == 0 || length == 0 {
		return nil, false
	}
	data, ok := m.Memory().Read(ptr, length)
	if !ok {
		return nil, false
	}
	frame := make([]byte, length)
	copy(frame, data)
	return frame, true
}

// writeGuestBuffer allocates guest memory through the guest's own allocator
// and copies the response in, returning the packed ptr/len. The guest frees
// the buffer after decoding it.
func writeGuestBuffer(ctx context.Context, m api.Module, data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}
	allocate := m.ExportedFunction(exportAllocate)
	if allocate == nil {
		return 0
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 || results[0] == 0 {
		return 0
	}
	ptr := uint32(results[0])
	if !m.Memory().Write(ptr, data) {
		return 0
	}
	return PackPtrLen(ptr, uint32(len(data)))
}
