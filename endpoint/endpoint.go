// Package endpoint implements the per-side registry that mediates every
// cross-boundary call: it binds locally implemented services under generated
// names, resolves names received from the far side into callable proxies,
// and implements the receiving half of the call channel.
package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/Goooler/zipline/callchannel"
	"github.com/Goooler/zipline/codec"
)

// validate is a package-level singleton. Creating a validator per call is
// expensive; reusing one is the recommended pattern.
var validate = validator.New()

// Service is an object callable across the boundary. Implementations
// receive the decoded argument list and return one encoded value, or an
// error that crosses the channel as its string form only.
type Service interface {
	Call(ctx context.Context, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error)

// Call implements Service.
func (f ServiceFunc) Call(ctx context.Context, functionName string, args []callchannel.EncodedValue) (callchannel.EncodedValue, error) {
	return f(ctx, functionName, args)
}

// endpointConfig holds configuration for an Endpoint.
type endpointConfig struct {
	Codec         codec.ValueCodec
	Logger        *slog.Logger
	NamePrefix    string `validate:"required,excludesall=0x20"`
	ValidateCalls bool
}

func defaultEndpointConfig() endpointConfig {
	return endpointConfig{
		Codec:         codec.JSON{},
		NamePrefix:    "zipline",
		ValidateCalls: true,
	}
}

// Option configures an Endpoint.
type Option func(*endpointConfig)

// WithCodec sets the value codec used for handle names and failure
// surrogates. Both peers must use codecs that agree on these encodings.
func WithCodec(c codec.ValueCodec) Option {
	return func(cfg *endpointConfig) {
		cfg.Codec = c
	}
}

// WithLogger sets the logger for dispatch and delivery events. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *endpointConfig) {
		cfg.Logger = l
	}
}

// WithNamePrefix sets the prefix of generated handle names. Names are only
// required to be unique within one endpoint; the prefix exists so logs from
// the two sides can be told apart.
func WithNamePrefix(prefix string) Option {
	return func(cfg *endpointConfig) {
		cfg.NamePrefix = prefix
	}
}

// WithCallValidation enables/disables rejection of calls with empty
// instance or function names before lookup. Default is true.
func WithCallValidation(enabled bool) Option {
	return func(cfg *endpointConfig) {
		cfg.ValidateCalls = enabled
	}
}

// Endpoint is one side's registry for the channel session. It owns the
// name→service mapping, generates names unique for its lifetime, and acts
// as the receiving side of the call channel. Bound services are retained
// for the endpoint's lifetime; only suspend callbacks are unbound, after
// their single delivery.
type Endpoint struct {
	config endpointConfig

	nextID atomic.Uint64

	mu       sync.Mutex
	channel  callchannel.CallChannel
	services map[string]Service
	schemas  map[string]string
}

// New creates an Endpoint for one side of a channel session.
func New(opts ...Option) (*Endpoint, error) {
	cfg := defaultEndpointConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("endpoint: invalid configuration: %w", err)
	}
	return &Endpoint{
		config:   cfg,
		services: make(map[string]Service),
		schemas:  make(map[string]string),
	}, nil
}

// Connect sets the outbound channel this endpoint uses to reach its peer.
// It must be called before any outbound call or suspending dispatch.
func (e *Endpoint) Connect(ch callchannel.CallChannel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channel = ch
}

// GenerateName produces a name unique for the lifetime of this endpoint.
// Safe for concurrent use.
func (e *Endpoint) GenerateName() string {
	return fmt.Sprintf("%s/%d", e.config.NamePrefix, e.nextID.Add(1))
}

// Bind records that name resolves to service for future inbound dispatch.
// Binding a name twice is a programming error and fails fast.
func (e *Endpoint) Bind(name string, service Service) error {
	if name == "" {
		return fmt.Errorf("endpoint: bind with empty name")
	}
	if service == nil {
		return fmt.Errorf("endpoint: bind %q with nil service", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.services[name]; exists {
		return fmt.Errorf("endpoint: %q already bound", name)
	}
	e.services[name] = service
	e.config.Logger.Debug("service bound", "name", name)
	return nil
}

// MustBind is Bind that panics on error, for wiring done at startup.
func (e *Endpoint) MustBind(name string, service Service) {
	if err := e.Bind(name, service); err != nil {
		panic(err)
	}
}

// BindModel binds a service and registers a JSON schema generated from the
// given argument model. The schema is local diagnostics for tooling; it is
// never exchanged with the peer.
func (e *Endpoint) BindModel(name string, service Service, argModel any) error {
	s := jsonschema.Reflect(argModel)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("endpoint: marshal schema for %q: %w", name, err)
	}
	if err := e.Bind(name, service); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schemas[name] = string(data)
	return nil
}

// Schema returns the JSON schema registered for name via BindModel.
func (e *Endpoint) Schema(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.schemas[name]
	return s, ok
}

// ServiceNames returns the currently bound names, sorted.
func (e *Endpoint) ServiceNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Endpoint) unbind(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.services, name)
	delete(e.schemas, name)
}

func (e *Endpoint) lookup(name string) (Service, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, ok := e.services[name]
	return svc, ok
}

func (e *Endpoint) outbound() (callchannel.CallChannel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channel == nil {
		return nil, fmt.Errorf("endpoint: not connected to a peer channel")
	}
	return e.channel, nil
}
