// Kernel image entry point
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command kernel brings up a single AMD64 core, an xHCI host controller
// and its attached HID devices, then hands control to the kernel event
// loop. Built with `GOOS=tamago GOARCH=amd64`, chain-loaded by a UEFI
// bootloader that is itself out of scope (spec.md §1) beyond the ABI
// boot.go decodes.
package main

import (
	"log"
	"reflect"

	"github.com/mknm-os/kernel/acpi"
	"github.com/mknm-os/kernel/amd64"
	"github.com/mknm-os/kernel/boot"
	"github.com/mknm-os/kernel/dma"
	"github.com/mknm-os/kernel/graphics"
	"github.com/mknm-os/kernel/kernel"
	"github.com/mknm-os/kernel/mem/frame"
	"github.com/mknm-os/kernel/mem/slab"
	"github.com/mknm-os/kernel/soc/intel/pci"
	"github.com/mknm-os/kernel/task"
	"github.com/mknm-os/kernel/timer"
	"github.com/mknm-os/kernel/xhci"
)

// Interrupt vectors this image wires the LAPIC timer LVT entry and the
// xHC's MSI data field to.
const (
	lapicTimerVector = 32
	xhciVector       = 33
)

// dmaFrames sizes the DMA-visible region handed to dma.Init: 256 frames is
// 1 MiB, comfortably covering the device/input contexts, rings and
// scratchpad buffers a single xHC and its attached HID devices need.
const dmaFrames = 256

// cpu is the single core this kernel runs on; multi-core bring-up is out
// of scope (spec.md §1 names only the boot processor).
var cpu = &amd64.CPU{}

// bootParams is the bootloader handoff ABI boundary (spec.md §6): a
// function taking three pointers per System V AMD64 — framebuffer config,
// raw UEFI memory map, ACPI RSDP — that the out-of-scope bootloader
// populates before transferring control here. Defined in assembly, the
// same declared-only idiom as load_idt and switchContext.
func bootParams() (*boot.FrameBufferConfigRaw, *boot.MemoryMapRaw, *boot.RSDP)

// PCI class/subclass/prog-if triples (PCI Code and ID Assignment
// Specification §D): xHCI is 0C/03/30, a companion Intel eHCI is 0C/03/20.
const (
	serialBusClass        = 0x0c
	usbSubclass           = 0x03
	xhciProgIF            = 0x30
	ehciProgIF            = 0x20
	intelVendor    uint16 = 0x8086
)

// classTriple reads a device's class code register (soc/intel/pci has no
// class-based finder of its own, only vendor/device lookup and full bus
// listing, so this kernel image does the filtering itself over
// pci.Devices).
func classTriple(d *pci.Device) (class, subclass, progIF byte) {
	v := d.Read(0, pci.RevisionID)
	return byte(v >> 24), byte(v >> 16), byte(v >> 8)
}

// findControllers scans bus for the xHC this kernel drives and for a
// companion Intel eHCI controller whose ports must be switched over
// (spec.md §4.7's "Intel eHCI companion handoff").
func findControllers(bus int) (xhc *pci.Device, intelEHCIFound bool) {
	for _, d := range pci.Devices(bus) {
		class, subclass, progIF := classTriple(d)
		if class != serialBusClass || subclass != usbSubclass {
			continue
		}
		switch progIF {
		case xhciProgIF:
			xhc = d
		case ehciProgIF:
			if d.Vendor == intelVendor {
				intelEHCIFound = true
			}
		}
	}
	return
}

func main() {
	log.SetFlags(0)

	cpu.Init()
	cpu.EnableExceptions()

	fbConfig, memMap, rsdp := bootParams()

	frames := frame.New(memMap.Descriptors())

	slabAlloc := slab.New(frames)
	slabAlloc.SelfTest()

	dmaStart, err := frames.Allocate(dmaFrames)
	if err != nil {
		log.Fatalf("kernel: failed reserving DMA region: %v", err)
	}
	dma.Init(uint(frame.FrameToPtr(dmaStart)), dmaFrames*frame.Size)

	fadt, err := acpi.Parse(rsdp)
	if err != nil {
		log.Fatalf("kernel: ACPI parse failed: %v", err)
	}

	cpu.LAPIC.Enable()
	timer.Calibrate(cpu.LAPIC, fadt, lapicTimerVector)

	xhc, intelEHCIFound := findControllers(0)
	if xhc == nil {
		log.Fatalf("kernel: no xHCI controller found")
	}

	ctrl := xhci.New(xhc, intelEHCIFound, uint8(cpu.LAPIC.ID()), xhciVector)
	ports := xhci.NewPortAddressing(ctrl)
	ports.Bootstrap()

	cr3 := amd64.ReadCR3()

	stackFrames, err := frames.Allocate((taskBStackSize + frame.Size - 1) / frame.Size)
	if err != nil {
		log.Fatalf("kernel: failed allocating task B stack: %v", err)
	}
	taskBSP := uint64(frame.FrameToPtr(stackFrames)) + taskBStackSize - 8
	taskBRIP := uint64(reflect.ValueOf(taskBEntry).Pointer())

	bootCtx := task.NewContext(0, 0, 0, 0, cr3)
	taskBCtx := task.NewContext(taskBRIP, 0, 0, taskBSP, cr3)
	tasks := task.NewManager(bootCtx, taskBCtx)

	queue := kernel.NewMessageQueue()
	timers := timer.NewManager(queue)

	writer := graphics.NewWriter(fbConfig.Config())
	clock := graphics.NewClockWindow(writer, 0, 0, 32, 32)

	k := kernel.New(kernel.Config{
		CPU:    cpu,
		Queue:  queue,
		Timers: timers,
		Tasks:  tasks,
		Ctrl:   ctrl,
		Ports:  ports,
		Clock:  clock,
	})

	k.Init()
	k.Run()
}
