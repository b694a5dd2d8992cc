// AMD64 processor support
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"github.com/mknm-os/kernel/bits"
	"github.com/mknm-os/kernel/internal/reg"
)

// CPUID function numbers
//
// (Intel® Architecture Instruction Set Extensions
// and Future Features Programming Reference
// 1.5 CPUID INSTRUCTION).
const (
	CPUID_VENDOR           = 0x00
	CPUID_VENDOR_ECX_INTEL = 0x6c65746e // GenuineI(ntel)
	CPUID_VENDOR_ECX_AMD   = 0x444d4163 // Authenti(cAMD)

	CPUID_INFO      = 0x01
	INFO_HYPERVISOR = 31

	CPUID_APM         = 0x80000007
	APM_TSC_INVARIANT = 8
)

// Features represents the processor capabilities detected through the CPUID
// instruction. Only the subset this kernel's single-core, ACPI-PM-timer
// calibrated design depends on is probed; everything geared towards SMP
// bring-up or TSC-deadline timers (present in the wider AMD64 instruction
// set) is left undetected.
type Features struct {
	// TSCInvariant indicates whether the Time Stamp Counter is guaranteed
	// to be at constant rate. Informational only: the timer subsystem
	// calibrates against the ACPI PM timer regardless.
	TSCInvariant bool

	// Hypervisor indicates execution under a hypervisor (CPUID leaf 1,
	// ECX bit 31), surfaced for diagnostics.
	Hypervisor bool
}

// defined in features.s
func cpuid(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)

// CPUID returns the processor capabilities.
func (cpu *CPU) CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32) {
	return cpuid(leaf, subleaf)
}

// MSR returns a machine-specific register.
func (cpu *CPU) MSR(addr uint64) (val uint64) {
	return reg.ReadMSR(addr)
}

func (cpu *CPU) initFeatures() {
	_, _, _, apmFeatures := cpuid(CPUID_APM, 0)
	cpu.features.TSCInvariant = bits.IsSet(&apmFeatures, APM_TSC_INVARIANT)

	_, _, infoFeatures, _ := cpuid(CPUID_INFO, 0)
	cpu.features.Hypervisor = bits.IsSet(&infoFeatures, INFO_HYPERVISOR)
}

// Features returns the processor capabilities.
func (cpu *CPU) Features() *Features {
	return &cpu.features
}
