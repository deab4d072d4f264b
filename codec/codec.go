// Package codec provides the pluggable value codec used to serialize
// individual call arguments and results. The channel framing only sees the
// produced bytes; any codec works as long as it is deterministic and
// self-delimiting once length-prefixed.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueCodec serializes single values for transport across the channel.
type ValueCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the reference text-based codec.
type JSON struct{}

// Encode marshals v to compact JSON.
func (JSON) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

// Decode unmarshals data into v. Trailing content after the value is
// rejected: a framed value must be exactly one JSON document.
func (JSON) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("codec: decode: trailing content after value")
	}
	return nil
}
