// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

// defined in msr_amd64.s
func Msr(addr uint32) (val uint32)

// ReadMSR returns the full 64-bit value (EDX:EAX) of a model-specific
// register, for MSRs whose upper half the caller needs (the APM/feature
// leaves only ever need the low 32 bits, hence [Msr] staying narrow).
//
// defined in msr_amd64.s
func ReadMSR(addr uint64) (val uint64)
