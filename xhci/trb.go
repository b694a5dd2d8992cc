// xHCI Transfer Request Block encoding
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "github.com/mknm-os/kernel/bits"

// TRB is the generic 16-byte Transfer Request Block shared by the command,
// transfer and event rings (xHCI 1.2 §4.11). The four dwords are kept in
// wire order so a TRB can be written directly into a ring slot with no
// further marshalling.
type TRB [4]uint32

// TRB Types (xHCI 1.2 table 6-91).
const (
	TypeNormal             = 1
	TypeSetupStage         = 2
	TypeDataStage          = 3
	TypeStatusStage        = 4
	TypeIsoch              = 5
	TypeLink               = 6
	TypeEventData          = 7
	TypeNoopTransfer       = 8
	TypeEnableSlot         = 9
	TypeDisableSlot        = 10
	TypeAddressDevice      = 11
	TypeConfigureEndpoint  = 12
	TypeEvaluateContext    = 13
	TypeResetEndpoint      = 14
	TypeStopEndpoint       = 15
	TypeSetTRDequeuePtr    = 16
	TypeResetDevice        = 17
	TypeNoopCommand        = 23
	TypeTransferEvent      = 32
	TypeCommandCompletion  = 33
	TypePortStatusChange   = 34
	TypeHostController     = 37
	TypeDeviceNotification = 38
	TypeMfindexWrap        = 39
)

// Completion codes (xHCI 1.2 table 6-90), the only ones this driver
// distinguishes between.
const (
	CompletionSuccess     = 1
	CompletionShortPacket = 13
)

// CycleBit reports the TRB's cycle bit (dword 3, bit 0).
func (t TRB) CycleBit() bool {
	return t[3]&1 == 1
}

// SetCycleBit sets or clears the cycle bit in place.
func (t *TRB) SetCycleBit(v bool) {
	if v {
		t[3] |= 1
	} else {
		t[3] &^= 1
	}
}

// Type returns the TRB type field (dword 3, bits 10:15).
func (t TRB) Type() int {
	return int(bits.Get(&t[3], 10, 0x3f))
}

func (t *TRB) setType(typ int) {
	t[3] = (t[3] &^ (0x3f << 10)) | uint32(typ&0x3f)<<10

}

// CompletionCode returns the completion code of an event TRB (dword 2,
// bits 24:31).
func (t TRB) CompletionCode() int {
	return int(t[2] >> 24)
}

// SlotID returns the slot ID field shared by enable-slot completions,
// address-device commands and transfer events (dword 3, bits 24:31).
func (t TRB) SlotID() int {
	return int(t[3] >> 24)
}

func (t *TRB) setSlotID(id int) {
	t[3] = (t[3] &^ (0xff << 24)) | uint32(id&0xff)<<24
}

// EndpointID returns the endpoint ID field of a transfer event (dword 3,
// bits 16:20), the DCI: (endpoint number * 2) + direction.
func (t TRB) EndpointID() int {
	return int(bits.Get(&t[3], 16, 0x1f))
}

// Pointer returns the 64-bit pointer field carried in dwords 0-1 —
// the ring segment pointer for Link TRBs, the TRB pointer for events, the
// data/input context pointer for data-stage and address-device TRBs.
func (t TRB) Pointer() uint64 {
	return uint64(t[0]) | uint64(t[1])<<32
}

func (t *TRB) setPointer(addr uint64) {
	t[0] = uint32(addr)
	t[1] = uint32(addr >> 32)
}

// NewLink builds a Link TRB pointing at the start of the next ring segment,
// with the toggle-cycle bit set so the producer's cycle state flips when
// traversed (xHCI 1.2 §4.9.2.1).
func NewLink(segmentPtr uint64) TRB {
	var t TRB
	t.setPointer(segmentPtr)
	t.setType(TypeLink)
	t[3] |= 1 << 1 // toggle cycle
	return t
}

// NewNoopCommand builds a No Op command TRB, used by tests and diagnostics.
func NewNoopCommand() TRB {
	var t TRB
	t.setType(TypeNoopCommand)
	return t
}

// NewEnableSlot builds an Enable Slot command TRB.
func NewEnableSlot() TRB {
	var t TRB
	t.setType(TypeEnableSlot)
	return t
}

// NewAddressDevice builds an Address Device command TRB. bsr selects the
// Block Set Address Request bit, used for low-power address-without-SET_ADDRESS
// sequences; this driver always issues bsr=false.
func NewAddressDevice(inputCtxPtr uint64, slotID int, bsr bool) TRB {
	var t TRB
	t.setPointer(inputCtxPtr)
	t.setType(TypeAddressDevice)
	t.setSlotID(slotID)
	if bsr {
		t[3] |= 1 << 9
	}
	return t
}

// NewConfigureEndpoint builds a Configure Endpoint command TRB.
func NewConfigureEndpoint(inputCtxPtr uint64, slotID int) TRB {
	var t TRB
	t.setPointer(inputCtxPtr)
	t.setType(TypeConfigureEndpoint)
	t.setSlotID(slotID)
	return t
}

// SetupStage direction encodings, used for the Transfer Type field of a
// Setup Stage TRB (xHCI 1.2 table 6-26).
const (
	transferTypeNone = 0
	transferTypeOut  = 2
	transferTypeIn   = 3
)

// NewSetupStage builds a Setup Stage TRB carrying the eight raw bytes of a
// USB control request. dataStageIn/hasData pick the transfer type the
// following Data Stage will use.
func NewSetupStage(requestType, request uint8, value, index, length uint16, dataStageIn, hasData bool) TRB {
	var t TRB
	t[0] = uint32(requestType) | uint32(request)<<8 | uint32(value)<<16
	t[1] = uint32(index) | uint32(length)<<16
	t[2] = 8 // TRB Transfer Length is always 8 for Setup Stage

	t.setType(TypeSetupStage)
	t[3] |= 1 << 6 // Immediate Data
	t[3] |= 1 << 5 // Interrupt On Completion

	transferType := transferTypeNone
	if hasData {
		if dataStageIn {
			transferType = transferTypeIn
		} else {
			transferType = transferTypeOut
		}
	}
	t[3] |= uint32(transferType) << 16

	return t
}

// NewDataStage builds a Data Stage TRB for a control transfer.
func NewDataStage(bufPtr uint64, length uint32, in bool) TRB {
	var t TRB
	t.setPointer(bufPtr)
	t[2] = length
	t.setType(TypeDataStage)
	if in {
		t[3] |= 1 << 16 // Direction
	}
	t[3] |= 1 << 5 // Interrupt On Completion
	t[3] |= 1 << 2 // Interrupt On Short Packet
	return t
}

// NewStatusStage builds a Status Stage TRB for a control transfer. in
// selects the direction opposite the data stage (or IN, for no-data
// requests), matching xHCI 1.2 §4.11.2.7.
func NewStatusStage(in bool) TRB {
	var t TRB
	t.setType(TypeStatusStage)
	if in {
		t[3] |= 1 << 16
	}
	t[3] |= 1 << 5 // Interrupt On Completion
	return t
}

// NewNormal builds a Normal TRB for an interrupt-endpoint transfer (HID
// report polling).
func NewNormal(bufPtr uint64, length uint32) TRB {
	var t TRB
	t.setPointer(bufPtr)
	t[2] = length
	t.setType(TypeNormal)
	t[3] |= 1 << 5 // Interrupt On Completion
	t[3] |= 1 << 2 // Interrupt On Short Packet
	return t
}
