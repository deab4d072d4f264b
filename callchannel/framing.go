package callchannel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// NullLength is the length sentinel marking a null value: no payload bytes
// follow it. Both peers must agree on this constant and on big-endian int32
// integers; a mismatch is protocol corruption, not a recoverable error.
const NullLength int32 = -1

// ErrTruncated reports a buffer that ended before its length prefixes said
// it would. Once a length prefix itself is suspect the channel cannot be
// resynchronized.
var ErrTruncated = errors.New("callchannel: truncated frame")

// ErrTrailingBytes reports bytes left over after a complete frame. The frame
// boundary is wrong on one side, so the channel is suspect.
var ErrTrailingBytes = errors.New("callchannel: trailing bytes after frame")

// EncodeArguments frames an ordered argument list: an int32 count, then per
// argument an int32 byte length (NullLength for null) followed by the bytes.
func EncodeArguments(args []EncodedValue) []byte {
	size := 4
	for _, a := range args {
		size += 4 + len(a)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(args)))
	for _, a := range args {
		buf = appendValue(buf, a)
	}
	return buf
}

// DecodeArguments is the inverse of EncodeArguments. The whole buffer must
// be exactly one argument frame.
func DecodeArguments(data []byte) ([]EncodedValue, error) {
	count, rest, err := readInt32(data)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("callchannel: negative argument count %d", count)
	}
	args := make([]EncodedValue, 0, count)
	for i := int32(0); i < count; i++ {
		var v EncodedValue
		v, rest, err = readValue(rest)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, v)
	}
	if len(rest) != 0 {
		return nil, ErrTrailingBytes
	}
	return args, nil
}

// EncodeResult frames a Result: one kind byte, then the value with its
// length prefix (NullLength for null).
func EncodeResult(r Result) []byte {
	buf := make([]byte, 0, 1+4+len(r.Value))
	buf = append(buf, byte(r.Kind))
	buf = appendValue(buf, r.Value)
	return buf
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(data []byte) (Result, error) {
	if len(data) < 1 {
		return Result{}, ErrTruncated
	}
	kind := ResultKind(data[0])
	if kind != ResultNormal && kind != ResultException {
		return Result{}, fmt.Errorf("callchannel: unknown result kind %d", data[0])
	}
	value, rest, err := readValue(data[1:])
	if err != nil {
		return Result{}, err
	}
	if len(rest) != 0 {
		return Result{}, ErrTrailingBytes
	}
	return Result{Kind: kind, Value: value}, nil
}

// EncodeCall frames a full call envelope for byte-oriented transports: the
// two int32-length-prefixed name strings followed by the already framed
// argument block.
func EncodeCall(instanceName, functionName string, encodedArguments []byte) []byte {
	buf := make([]byte, 0, 4+len(instanceName)+4+len(functionName)+len(encodedArguments))
	buf = appendString(buf, instanceName)
	buf = appendString(buf, functionName)
	buf = append(buf, encodedArguments...)
	return buf
}

// DecodeCall is the inverse of EncodeCall. The returned argument block is
// the remainder of the buffer, still framed; pass it to DecodeArguments.
func DecodeCall(data []byte) (instanceName, functionName string, encodedArguments []byte, err error) {
	instanceName, data, err = readString(data)
	if err != nil {
		return "", "", nil, fmt.Errorf("instance name: %w", err)
	}
	functionName, data, err = readString(data)
	if err != nil {
		return "", "", nil, fmt.Errorf("function name: %w", err)
	}
	return instanceName, functionName, data, nil
}

// EncodeSuspendingCall frames a suspending-call envelope: the three
// int32-length-prefixed strings (instance, function, callback) followed by
// the framed argument block.
func EncodeSuspendingCall(instanceName, functionName string, encodedArguments []byte, callbackName string) []byte {
	buf := make([]byte, 0, 12+len(instanceName)+len(functionName)+len(callbackName)+len(encodedArguments))
	buf = appendString(buf, instanceName)
	buf = appendString(buf, functionName)
	buf = appendString(buf, callbackName)
	buf = append(buf, encodedArguments...)
	return buf
}

// DecodeSuspendingCall is the inverse of EncodeSuspendingCall.
func DecodeSuspendingCall(data []byte) (instanceName, functionName string, encodedArguments []byte, callbackName string, err error) {
	instanceName, data, err = readString(data)
	if err != nil {
		return "", "", nil, "", fmt.Errorf("instance name: %w", err)
	}
	functionName, data, err = readString(data)
	if err != nil {
		return "", "", nil, "", fmt.Errorf("function name: %w", err)
	}
	callbackName, data, err = readString(data)
	if err != nil {
		return "", "", nil, "", fmt.Errorf("callback name: %w", err)
	}
	return instanceName, functionName, data, callbackName, nil
}

func appendValue(buf []byte, v EncodedValue) []byte {
	if v.IsNull() {
		nullLength := NullLength
		return binary.BigEndian.AppendUint32(buf, uint32(nullLength))
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

func readValue(data []byte) (EncodedValue, []byte, error) {
	length, rest, err := readInt32(data)
	if err != nil {
		return nil, nil, err
	}
	if length == NullLength {
		return nil, rest, nil
	}
	if length < 0 {
		return nil, nil, fmt.Errorf("callchannel: invalid length %d", length)
	}
	if int(length) > len(rest) {
		return nil, nil, ErrTruncated
	}
	// Copy so the decoded value does not alias the transport buffer.
	v := make(EncodedValue, length)
	copy(v, rest[:length])
	return v, rest[length:], nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	length, rest, err := readInt32(data)
	if err != nil {
		return "", nil, err
	}
	if length < 0 {
		return "", nil, fmt.Errorf("callchannel: invalid length %d", length)
	}
	if int(length) > len(rest) {
		return "", nil, ErrTruncated
	}
	return string(rest[:length]), rest[length:], nil
}

func readInt32(data []byte) (int32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, ErrTruncated
	}
	return int32(binary.BigEndian.Uint32(data)), data[4:], nil
}
