// Package callchannel defines the byte-level contract between the two sides
// of a bridge: the CallChannel entry points and the framing of arguments and
// results. These layouts are the ABI between independently implemented peers
// and must remain stable.
package callchannel

import "context"

// EncodedValue is one serialized value as produced by a value codec.
// A nil slice represents the null value; on the wire it is written as the
// null length sentinel with no payload bytes following.
type EncodedValue []byte

// IsNull reports whether the value is the null sentinel.
func (v EncodedValue) IsNull() bool {
	return v == nil
}

// ResultKind discriminates how a call's result payload must be interpreted.
type ResultKind byte

const (
	// ResultNormal marks a payload holding the callee's return value.
	ResultNormal ResultKind = 0

	// ResultException marks a payload holding a failure surrogate that the
	// caller must re-raise as an error.
	ResultException ResultKind = 1
)

// Result is the outcome of a single call. Exactly one Result is produced per
// call; Kind determines whether Value is a return value or an encoded
// failure surrogate.
type Result struct {
	Value EncodedValue
	Kind  ResultKind
}

// CallChannel is the transport boundary between the two peers. Both sides
// expose the same two entry points; calls may propagate in either direction.
//
// Invoke is synchronous: the caller blocks until the callee produced the
// encoded result. It must not be used for callee-side long-running work that
// would stall a shared execution context.
//
// InvokeSuspending is fire-and-forget from the transport's point of view:
// the callee eventually issues a separate call against callbackName carrying
// the encoded result. No ordering is guaranteed between InvokeSuspending
// returning and the callback delivery.
//
// The error returns carry transport-level failures only (a broken channel,
// an unreachable guest). Everything the far side can report, including
// unknown instance names, travels inside an Exception-kind result.
type CallChannel interface {
	Invoke(ctx context.Context, instanceName, functionName string, encodedArguments []byte) ([]byte, error)
	InvokeSuspending(ctx context.Context, instanceName, functionName string, encodedArguments []byte, callbackName string) error
}

// CallbackFunction is the function name invoked against a suspend callback
// to deliver its single encoded result.
const CallbackFunction = "deliver"
