package usb

import "testing"

func TestParseDeviceDescriptor(t *testing.T) {
	buf := make([]byte, 18)
	buf[0] = 18
	buf[1] = descTypeDevice
	buf[2], buf[3] = 0x00, 0x02 // bcdUSB 0x0200
	buf[4] = 0xef               // class
	buf[8], buf[9] = 0x34, 0x12 // idVendor 0x1234
	buf[17] = 1                 // one configuration

	d := parseDeviceDescriptor(buf)

	if d.BcdUSB() != 0x0200 {
		t.Fatalf("BcdUSB() = %#x, want 0x0200", d.BcdUSB())
	}
	if d.DeviceClass() != 0xef {
		t.Fatalf("DeviceClass() = %#x, want 0xef", d.DeviceClass())
	}
	if d.IDVendor() != 0x1234 {
		t.Fatalf("IDVendor() = %#x, want 0x1234", d.IDVendor())
	}
	if d.NumConfigurations() != 1 {
		t.Fatalf("NumConfigurations() = %d, want 1", d.NumConfigurations())
	}
}

func TestParseDescriptorListWalksMixedEntries(t *testing.T) {
	var buf []byte

	// Configuration descriptor: length 9, 1 interface.
	buf = append(buf, 9, descTypeConfiguration, 0, 0, 1, 1, 0, 0, 0)
	// Interface descriptor: length 9.
	buf = append(buf, 9, descTypeInterface, 0, 0, 1, 3, 1, 2, 0)
	// HID descriptor: length 9.
	buf = append(buf, 9, descTypeHID, 0x11, 0x01, 0, 0, 0, 0, 0)
	// Endpoint descriptor: length 7, IN interrupt endpoint 0x81.
	buf = append(buf, 7, descTypeEndpoint, 0x81, 0x03, 0x08, 0x00, 0x0a)

	descs := parseDescriptorList(buf)
	if len(descs) != 4 {
		t.Fatalf("parseDescriptorList returned %d entries, want 4", len(descs))
	}

	if _, ok := descs[0].(ConfigurationDescriptor); !ok {
		t.Fatalf("descs[0] = %T, want ConfigurationDescriptor", descs[0])
	}
	iface, ok := descs[1].(InterfaceDescriptor)
	if !ok {
		t.Fatalf("descs[1] = %T, want InterfaceDescriptor", descs[1])
	}
	if iface.interfaceClass != 3 {
		t.Fatalf("interfaceClass = %d, want 3", iface.interfaceClass)
	}
	if _, ok := descs[2].(HidDescriptor); !ok {
		t.Fatalf("descs[2] = %T, want HidDescriptor", descs[2])
	}

	ep, ok := descs[3].(EndpointDescriptor)
	if !ok {
		t.Fatalf("descs[3] = %T, want EndpointDescriptor", descs[3])
	}
	if !ep.Direction() {
		t.Fatalf("Direction() = false, want true for endpoint 0x81")
	}
	if ep.DCI() != 3 {
		t.Fatalf("DCI() = %d, want 3 (2*1+1)", ep.DCI())
	}
	if ep.TransferType() != 3 {
		t.Fatalf("TransferType() = %d, want 3 (interrupt)", ep.TransferType())
	}
}

func TestReadDescriptorRejectsTruncatedLength(t *testing.T) {
	buf := []byte{9, descTypeConfiguration, 0, 0} // claims length 9, only 4 bytes present

	_, _, ok := readDescriptor(buf)
	if ok {
		t.Fatalf("readDescriptor accepted a truncated descriptor")
	}
}

func TestConstructConfigurationGroupsByInterface(t *testing.T) {
	var buf []byte
	buf = append(buf, 9, descTypeConfiguration, 0, 0, 1, 1, 0, 0, 0)
	buf = append(buf, 9, descTypeInterface, 0, 0, 1, 3, 1, 2, 0) // class 3 (HID), protocol 2 (boot mouse)
	buf = append(buf, 7, descTypeEndpoint, 0x81, 0x03, 0x08, 0x00, 0x0a)

	descs := parseDescriptorList(buf)
	conf, err := ConstructConfiguration(descs)
	if err != nil {
		t.Fatalf("ConstructConfiguration failed: %v", err)
	}

	if len(conf.Interfaces) != 1 || len(conf.Interfaces[0].Alternates) != 1 {
		t.Fatalf("conf.Interfaces = %+v, want one interface with one alternate", conf.Interfaces)
	}

	alt := conf.Interfaces[0].Alternates[0]
	if alt.Class != 3 || alt.Protocol != 2 {
		t.Fatalf("alt class/protocol = %d/%d, want 3/2", alt.Class, alt.Protocol)
	}

	eps := alt.Endpoints()
	if len(eps) != 1 {
		t.Fatalf("alt.Endpoints() returned %d entries, want 1", len(eps))
	}
	ep, ok := eps[0].(EndpointDescriptor)
	if !ok {
		t.Fatalf("eps[0] = %T, want EndpointDescriptor", eps[0])
	}
	if ep.DCI() != 3 {
		t.Fatalf("ep.DCI() = %d, want 3", ep.DCI())
	}
}

func TestReadDescriptorPreservesUnknownType(t *testing.T) {
	buf := []byte{4, 0x0f, 0xaa, 0xbb}

	desc, rest, ok := readDescriptor(buf)
	if !ok {
		t.Fatalf("readDescriptor rejected a well-formed unknown descriptor")
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %v, want empty", rest)
	}

	u, ok := desc.(UnknownDescriptor)
	if !ok {
		t.Fatalf("desc = %T, want UnknownDescriptor", desc)
	}
	if u.Type != 0x0f || len(u.Content) != 4 {
		t.Fatalf("UnknownDescriptor = %+v, want Type=0x0f len(Content)=4", u)
	}
}
