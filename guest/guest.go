//go:build wasip1

// Package guest is the in-guest half of the channel ABI for programs
// compiled to wasip1 and embedded by the host package. Install wires a
// guest endpoint to the host's "zipline" import functions and exposes the
// guest's receiving side as WASM exports.
package guest

import (
	"context"
	"fmt"

	"github.com/Goooler/zipline/callchannel"
	"github.com/Goooler/zipline/endpoint"
)

// installed is the guest-side endpoint serving inbound host calls. WASM
// exports are package-level functions, so the endpoint has to be too.
var installed *endpoint.Endpoint

// Install wires e to the host: outbound calls flow through the "zipline"
// import functions, and the guest's invoke / invoke_suspending exports
// dispatch into e. Call it once, before the guest starts serving.
func Install(e *endpoint.Endpoint) error {
	if e == nil {
		return fmt.Errorf("guest: nil endpoint")
	}
	if installed != nil {
		return fmt.Errorf("guest: endpoint already installed")
	}
	e.Connect(hostChannel{})
	installed = e
	return nil
}

//go:wasmimport zipline invoke
func hostInvoke(packed uint64) uint64

//go:wasmimport zipline invoke_suspending
func hostInvokeSuspending(packed uint64)

// hostChannel is the guest's outbound channel: every call crosses into the
// host through the import functions.
type hostChannel struct{}

func (hostChannel) Invoke(_ context.Context, instanceName, functionName string, encodedArguments []byte) ([]byte, error) {
	frame := callchannel.EncodeCall(instanceName, functionName, encodedArguments)
	packedReq := pinBytes(frame)
	packedResp := hostInvoke(packedReq)
	// The host has copied the frame out by the time the import returns.
	deallocate(unpackPtrLen(packedReq))
	ptr, length := unpackPtrLen(packedResp)
	if ptr == 0 || length == 0 {
		return nil, fmt.Errorf("guest: host returned no result")
	}
	resp := readMemory(ptr, length)
	deallocate(ptr, length)
	return resp, nil
}

func (hostChannel) InvokeSuspending(_ context.Context, instanceName, functionName string, encodedArguments []byte, callbackName string) error {
	frame := callchannel.EncodeSuspendingCall(instanceName, functionName, encodedArguments, callbackName)
	packedReq := pinBytes(frame)
	hostInvokeSuspending(packedReq)
	deallocate(unpackPtrLen(packedReq))
	return nil
}

// guestInvoke is the receiving side of host-to-guest synchronous calls. The
// returned buffer is pinned; the host copies it out and calls deallocate.
//
//go:wasmexport invoke
func guestInvoke(ptr, size uint32) uint64 {
	if ptr == 0 || size == 0 {
		return 0
	}
	// The host pinned the frame through this side's allocate export; it is
	// this side's to free once copied out.
	defer deallocate(ptr, size)
	if installed == nil {
		return 0
	}
	frame := readMemory(ptr, size)
	instance, function, args, err := callchannel.DecodeCall(frame)
	if err != nil {
		return 0
	}
	resp, err := installed.Invoke(context.Background(), instance, function, args)
	if err != nil {
		return 0
	}
	return pinBytes(resp)
}

// guestInvokeSuspending is the receiving side of host-to-guest suspending
// calls; the result travels back through the host import functions against
// the callback name.
//
//go:wasmexport invoke_suspending
func guestInvokeSuspending(ptr, size uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	defer deallocate(ptr, size)
	if installed == nil {
		return
	}
	frame := readMemory(ptr, size)
	instance, function, args, callback, err := callchannel.DecodeSuspendingCall(frame)
	if err != nil {
		return
	}
	_ = installed.InvokeSuspending(context.Background(), instance, function, args, callback)
}
