// Package host embeds a guest interpreter compiled to WASM and bridges it
// to a host-side endpoint. The guest exposes the call channel through four
// exports (allocate, deallocate, invoke, invoke_suspending); the host
// exposes the reverse direction as import functions in the "zipline" host
// module. Both directions exchange packed pointer/length pairs over the
// guest's linear memory.
package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/Goooler/zipline/endpoint"
)

// Runtime owns the WASM runtime and the host-side endpoint that guest calls
// dispatch into.
type Runtime struct {
	runtime  wazero.Runtime
	endpoint *endpoint.Endpoint
	logger   *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger for guest call traffic. The default discards
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a WASM runtime whose guests are bridged to the given
// host endpoint: calls the guest issues against the "zipline" import module
// are dispatched into hostEndpoint.
func NewRuntime(ctx context.Context, hostEndpoint *endpoint.Endpoint, opts ...Option) (*Runtime, error) {
	if hostEndpoint == nil {
		return nil, fmt.Errorf("host: nil endpoint")
	}
	r := &Runtime{endpoint: hostEndpoint}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	r.runtime = rt

	if err := r.registerChannelImports(ctx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("host: register channel imports: %w", err)
	}
	return r, nil
}

// Close releases the runtime and every guest instantiated from it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Load instantiates a guest module and wires it to the host endpoint: the
// returned GuestChannel becomes the endpoint's outbound channel, so host
// calls reach guest services and suspending results flow back.
func (r *Runtime) Load(ctx context.Context, wasmBytes []byte) (*GuestChannel, error) {
	mod, err := r.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("host: instantiate guest: %w", err)
	}
	ch, err := newGuestChannel(mod)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}
	r.endpoint.Connect(ch)
	return ch, nil
}
