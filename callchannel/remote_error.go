package callchannel

// RemoteError is the failure surrogate reconstructed from an Exception-kind
// result. Only the far-side error's string form crosses the boundary: no
// type, no stack, no wrapped chain. It exists for diagnostics, not for
// catch-by-type logic across the channel.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
