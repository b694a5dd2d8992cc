// Raw MMIO byte/word helpers for the pre-register-set parts of controller
// bring-up (the extended-capability walk happens before any Registers
// value exists to address relative to its own base).
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/mknm-os/kernel/dma"
	"github.com/mknm-os/kernel/internal/reg"
)

func dwordRead(addr uint64) uint32 {
	return reg.ReadD(addr)
}

func dwordWrite(addr uint64, val uint32) {
	reg.WriteD(addr, val)
}

func dwordWriteWord(addr uint64, shift uint, val uint16) {
	v := dwordRead(addr)
	v = (v &^ (0xffff << shift)) | uint32(val)<<shift
	dwordWrite(addr, v)
}

// reserveBytes reserves n bytes of stable DMA memory and returns both its
// address and a direct []byte view over it, for small fixed-layout
// structures (the ERST) that don't warrant their own typed wrapper.
func reserveBytes(n int) (uint, []byte) {
	return dma.Reserve(n, 64)
}

func putU64(buf []byte, off int, v uint64) {
	*(*uint64)(unsafe.Pointer(&buf[off])) = v
}

func putU32(buf []byte, off int, v uint32) {
	*(*uint32)(unsafe.Pointer(&buf[off])) = v
}
