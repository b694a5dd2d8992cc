package hid

import (
	"testing"

	"github.com/mknm-os/kernel/usb"
)

func TestModifierSetBits(t *testing.T) {
	m := ModifierSet(1<<0 | 1<<5) // LCtrl + RShift

	if !m.LCtrl() || !m.RShift() {
		t.Fatalf("LCtrl/RShift not reported set for %08b", m)
	}
	if m.LShift() || m.LAlt() || m.LGui() || m.RCtrl() || m.RAlt() || m.RGui() {
		t.Fatalf("unexpected bit set for %08b", m)
	}

	mods := m.Modifiers()
	if len(mods) != 2 || mods[0] != LCtrl || mods[1] != RShift {
		t.Fatalf("Modifiers() = %v, want [LCtrl RShift]", mods)
	}
}

func TestParseKeyReport(t *testing.T) {
	buf := []byte{0x11, 0x00, 0x04, 0x05, 0, 0, 0, 0}

	r := parseKeyReport(buf)

	if r.Modifier != 0x11 {
		t.Fatalf("Modifier = %#x, want 0x11", r.Modifier)
	}
	if r.Keycodes[0] != 0x04 || r.Keycodes[1] != 0x05 {
		t.Fatalf("Keycodes = %v, want [4 5 0 0 0 0]", r.Keycodes)
	}
}

func TestParseMouseReport(t *testing.T) {
	buf := []byte{0x01, 0xfe, 0x02, 0, 0, 0, 0, 0} // button 1, dx=-2, dy=2

	r := parseMouseReport(buf)

	if r.Buttons != 1 {
		t.Fatalf("Buttons = %d, want 1", r.Buttons)
	}
	if r.Dx != -2 {
		t.Fatalf("Dx = %d, want -2", r.Dx)
	}
	if r.Dy != 2 {
		t.Fatalf("Dy = %d, want 2", r.Dy)
	}
}

func TestIsMouseAndIsKeyboard(t *testing.T) {
	mouse := &usb.UsbInterfaceAlternate{Class: ClassHID, SubClass: SubClassBoot, Protocol: ProtocolMouse}
	keyboard := &usb.UsbInterfaceAlternate{Class: ClassHID, SubClass: SubClassBoot, Protocol: ProtocolKeyboard}
	other := &usb.UsbInterfaceAlternate{Class: 8, SubClass: 6, Protocol: 0x50} // mass storage, bulk-only

	if !IsMouse(mouse) || IsKeyboard(mouse) {
		t.Fatalf("IsMouse/IsKeyboard misclassified a boot mouse interface")
	}
	if !IsKeyboard(keyboard) || IsMouse(keyboard) {
		t.Fatalf("IsMouse/IsKeyboard misclassified a boot keyboard interface")
	}
	if IsMouse(other) || IsKeyboard(other) {
		t.Fatalf("IsMouse/IsKeyboard misclassified an unrelated interface")
	}
}

func TestFindDCINoInterruptEndpoint(t *testing.T) {
	alt := &usb.UsbInterfaceAlternate{}

	if _, ok := findDCI(alt); ok {
		t.Fatalf("findDCI succeeded on an interface with no endpoints")
	}
}
