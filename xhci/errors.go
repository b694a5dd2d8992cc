// xHCI driver error types
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "errors"

// ErrRingFull is returned by ProducerRing.Push (and everything that wraps
// it) when the producer has caught up with the consumer's dequeue
// pointer.
var ErrRingFull = errors.New("xhci: ring is full")

// ErrUnexpectedDescriptor is returned when a GET_DESCRIPTOR response
// doesn't match the descriptor type/length the caller expected.
var ErrUnexpectedDescriptor = errors.New("xhci: unexpected descriptor")

// CommandError wraps a failed command-ring completion, carrying the
// completion code the controller reported (xHCI 1.2 table 6-90).
type CommandError struct {
	Command        int
	CompletionCode int
}

func (e *CommandError) Error() string {
	return "xhci: command failed"
}

// TransferError wraps a failed transfer-ring completion.
type TransferError struct {
	SlotID         int
	EndpointID     int
	CompletionCode int
}

func (e *TransferError) Error() string {
	return "xhci: transfer failed"
}
