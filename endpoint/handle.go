package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/Goooler/zipline/callchannel"
)

// ErrOutboundHandle is returned when serializing a handle that was resolved
// from the far side. Only locally implemented (inbound) handles may be
// exported; re-exporting a proxy is unsupported.
var ErrOutboundHandle = errors.New("endpoint: an outbound handle cannot be re-exported")

// Handle is a reference-typed value exchanged by name rather than by value.
// An inbound handle wraps a local service and, on serialization, is bound
// under a freshly generated name. An outbound handle knows only an endpoint
// and a received name; every call against it is a channel round trip. Two
// outbound handles with the same name reach the same remote object but are
// distinct local values.
type Handle struct {
	service  Service
	endpoint *Endpoint
	name     string
}

// InboundHandle wraps a locally implemented service for export.
func InboundHandle(service Service) *Handle {
	return &Handle{service: service}
}

// ResolveHandle turns a name received from the far side into an outbound
// proxy. Resolving the same name repeatedly yields independent proxies that
// all forward to the same remote name.
func (e *Endpoint) ResolveHandle(name string) *Handle {
	return &Handle{endpoint: e, name: name}
}

// Inbound reports whether the handle wraps a local service.
func (h *Handle) Inbound() bool {
	return h.service != nil
}

// Name returns the remote name of an outbound handle, or "" for an inbound
// handle, whose names are generated per serialization.
func (h *Handle) Name() string {
	return h.name
}

// Call invokes the referenced object: directly for an inbound handle, as a
// round trip through the endpoint for an outbound one.
func (h *Handle) Call(ctx context.Context, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	if h.service != nil {
		return h.service.Call(ctx, functionName, args)
	}
	return h.endpoint.Call(ctx, h.name, functionName, args)
}

// EncodeHandle serializes an inbound handle: it binds the wrapped service
// under a freshly generated name and emits that name through the value
// codec. Serializing an outbound handle fails with ErrOutboundHandle.
func (e *Endpoint) EncodeHandle(h *Handle) (callchannel.EncodedValue, error) {
	if !h.Inbound() {
		return nil, ErrOutboundHandle
	}
	name := e.GenerateName()
	if err := e.Bind(name, h.service); err != nil {
		return nil, err
	}
	data, err := e.config.Codec.Encode(name)
	if err != nil {
		return nil, fmt.Errorf("endpoint: encode handle name: %w", err)
	}
	return data, nil
}

// DecodeHandle deserializes a handle value received from the far side into
// an outbound proxy wired to this endpoint.
func (e *Endpoint) DecodeHandle(v callchannel.EncodedValue) (*Handle, error) {
	var name string
	if err := e.config.Codec.Decode(v, &name); err != nil {
		return nil, fmt.Errorf("endpoint: decode handle name: %w", err)
	}
	if name == "" {
		return nil, fmt.Errorf("endpoint: decoded empty handle name")
	}
	return e.ResolveHandle(name), nil
}
