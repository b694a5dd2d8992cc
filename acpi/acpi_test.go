package acpi

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

func checksum(buf []byte) byte {
	var sum byte
	for _, b := range buf {
		sum += b
	}
	return sum
}

func fixChecksum(buf []byte, at int, until int) {
	buf[at] = 0
	buf[at] = byte(256 - int(checksum(buf[:until])))
}

// buildFADT returns a byte buffer laid out as a minimal DescriptionHeader
// followed by padding up to offsetPMTmrBlk/offsetFlags, matching FADT's
// on-wire layout.
func buildFADT(pmTmrBlk uint32, flags uint32) []byte {
	buf := make([]byte, 276)
	copy(buf[0:4], "FACP")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[offsetPMTmrBlk:], pmTmrBlk)
	binary.LittleEndian.PutUint32(buf[offsetFlags:], flags)
	fixChecksum(buf, 9, len(buf))
	return buf
}

func buildXSDT(entries []uint64) []byte {
	buf := make([]byte, headerSize+8*len(entries))
	copy(buf[0:4], "XSDT")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	for i, e := range entries {
		binary.LittleEndian.PutUint64(buf[headerSize+i*8:], e)
	}
	fixChecksum(buf, 9, len(buf))
	return buf
}

func buildRSDP(xsdtAddr uint64) []byte {
	buf := make([]byte, 36)
	copy(buf[0:8], "RSD PTR ")
	buf[15] = 2 // revision
	binary.LittleEndian.PutUint64(buf[24:], xsdtAddr)
	fixChecksum(buf, 8, 20)
	fixChecksum(buf, 32, 36)
	return buf
}

func addrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestParseFADT(t *testing.T) {
	fadtBuf := buildFADT(0x1008, 1<<8)
	xsdtBuf := buildXSDT([]uint64{uint64(addrOf(fadtBuf))})
	rsdpBuf := buildRSDP(uint64(addrOf(xsdtBuf)))

	rsdp := (*RSDP)(unsafe.Pointer(&rsdpBuf[0]))

	fadt, err := Parse(rsdp)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fadt.PMTimerPort != 0x1008 {
		t.Fatalf("PMTimerPort = %#x, want 0x1008", fadt.PMTimerPort)
	}
	if !fadt.PMTimer32Bit {
		t.Fatalf("PMTimer32Bit = false, want true")
	}
}

func TestParseInvalidRSDPSignature(t *testing.T) {
	rsdpBuf := buildRSDP(0)
	copy(rsdpBuf[0:8], "GARBAGE!")

	rsdp := (*RSDP)(unsafe.Pointer(&rsdpBuf[0]))

	if _, err := Parse(rsdp); err != ErrInvalidRSDP {
		t.Fatalf("Parse error = %v, want ErrInvalidRSDP", err)
	}
}

func TestParseFADTNotFound(t *testing.T) {
	xsdtBuf := buildXSDT(nil)
	rsdpBuf := buildRSDP(uint64(addrOf(xsdtBuf)))

	rsdp := (*RSDP)(unsafe.Pointer(&rsdpBuf[0]))

	if _, err := Parse(rsdp); err != ErrFADTNotFound {
		t.Fatalf("Parse error = %v, want ErrFADTNotFound", err)
	}
}
