package layer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pktforge/tgen/pkg/tgerr"
)

func TestBitPackedField(t *testing.T) {
	l := New(KindUnknown, []Field{
		{Name: "A", BitSize: 4, FrameValue: []byte{0x0A}},
		{Name: "B", BitSize: 4, FrameValue: []byte{0x05}},
		{Name: "C", BitSize: 8, FrameValue: []byte{0xFF}},
	})
	got := l.ProtocolFrameValue(0, false)
	want := []byte{0xA5, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("ProtocolFrameValue = %x, want %x", got, want)
	}
	if size := l.ProtocolFrameSize(0); size != 2 {
		t.Fatalf("ProtocolFrameSize = %d, want 2", size)
	}
}

func TestChecksumZeroing(t *testing.T) {
	l := New(KindUnknown, []Field{
		{Name: "Head", BitSize: 32, FrameValue: []byte{0x45, 0x00, 0x00, 0x14}},
		{Name: "Cksum", BitSize: 16, Flags: FieldChecksum, FrameValue: []byte{0xAB, 0xCD}},
		{Name: "Tail", BitSize: 32, FrameValue: []byte{0x40, 0x00, 0x40, 0x06}},
	})
	plain := l.ProtocolFrameValue(0, false)
	want := []byte{0x45, 0x00, 0x00, 0x14, 0xAB, 0xCD, 0x40, 0x00, 0x40, 0x06}
	if !bytes.Equal(plain, want) {
		t.Fatalf("plain render = %x, want %x", plain, want)
	}

	zeroed := l.ProtocolFrameValue(0, true)
	wantZeroed := []byte{0x45, 0x00, 0x00, 0x14, 0x00, 0x00, 0x40, 0x00, 0x40, 0x06}
	if !bytes.Equal(zeroed, wantZeroed) {
		t.Fatalf("cksum-zeroed render = %x, want %x", zeroed, wantZeroed)
	}
}

func TestPayloadChecksumPropagation(t *testing.T) {
	eth := NewEthernet([6]byte{}, [6]byte{}, 0x0800)
	ip := NewIP4([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 64, 17)
	udp := NewUDP(1000, 2000)
	payload := NewPayload(3, 0)
	copy(payload.Fields[0].FrameValue, []byte("ABC"))

	eth.Next, ip.Prev = ip, eth
	ip.Next, udp.Prev = udp, ip
	udp.Next, payload.Prev = payload, udp

	got := udp.PayloadChecksum(0, CksumIP)
	want := cksumIP([]byte{0x41, 0x42, 0x43, 0x00})
	if got != want {
		t.Fatalf("UDP.PayloadChecksum(Ip) = %#x, want %#x", got, want)
	}
}

func TestUDPChecksumUsesRealIPv4PseudoHeader(t *testing.T) {
	ip := NewIP4([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 64, 17)
	udp := NewUDP(1000, 2000)
	payload := NewPayload(2, 0)
	copy(payload.Fields[0].FrameValue, []byte("AB"))

	ip.Next, udp.Prev = udp, ip
	udp.Next, payload.Prev = payload, udp

	got := udp.FrameChecksum(0, CksumTcpUdp)
	const want = 0xACDA // hand-computed over pseudo header + UDP header + "AB"
	if got != want {
		t.Fatalf("UDP.FrameChecksum(TcpUdp) = %#x, want %#x", got, want)
	}

	// Changing the source address must change the checksum: if the pseudo
	// header were still the constant 0xFFFF stand-in, it would not.
	ip2 := NewIP4([4]byte{9, 9, 9, 9}, [4]byte{2, 2, 2, 2}, 64, 17)
	udp2 := NewUDP(1000, 2000)
	payload2 := NewPayload(2, 0)
	copy(payload2.Fields[0].FrameValue, []byte("AB"))
	ip2.Next, udp2.Prev = udp2, ip2
	udp2.Next, payload2.Prev = payload2, udp2

	if got2 := udp2.FrameChecksum(0, CksumTcpUdp); got2 == got {
		t.Fatalf("checksum unchanged after source address change: %#x", got2)
	}
}

func TestShortNameCachesEmptyString(t *testing.T) {
	l := New(KindPayload, nil) // KindPayload's Name() returns "Payload" -> short name "P"
	if got := l.ShortName(); got != "P" {
		t.Fatalf("ShortName = %q, want %q", got, "P")
	}

	lowercase := &Layer{Kind: KindUnknown, metaCount: -1, protoSize: -1}
	Register(KindUnknown, &VTable{Name: func(*Layer) string { return "udp" }})
	defer delete(vtables, KindUnknown)
	if got := lowercase.ShortName(); got != "" {
		t.Fatalf("ShortName of all-lowercase name = %q, want empty", got)
	}
	if !lowercase.shortNameComputed {
		t.Fatalf("shortNameComputed not set after caching empty string")
	}
}

func TestChecksumRecursionGuard(t *testing.T) {
	l := New(KindPayload, []Field{{Name: "Data", BitSize: 8, FrameValue: []byte{0}}})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic on recursion depth exceeded")
		}
		var tgErr *tgerr.Error
		if err, ok := r.(error); !ok || !errors.As(err, &tgErr) || tgErr.Code != tgerr.ProtocolRecursion {
			t.Fatalf("recovered %v, want tgerr.ProtocolRecursion", r)
		}
	}()

	// Simulate the pathological case the guard exists for: a checksum
	// field whose FrameValue accessor calls back into FrameChecksum without
	// ever bottoming out, by entering already at the recursion limit. Depth
	// is an explicit parameter (not a package-level counter) so concurrent
	// callers on different chains never interfere with each other's guard.
	l.frameChecksum(0, CksumIP, maxChecksumRecursion)
}

func TestChecksumRecursionGuardIsPerCallNotShared(t *testing.T) {
	a := New(KindPayload, []Field{{Name: "Data", BitSize: 8, FrameValue: []byte{0xAA}}})
	b := New(KindPayload, []Field{{Name: "Data", BitSize: 8, FrameValue: []byte{0xBB}}})

	done := make(chan uint16, 2)
	for _, l := range []*Layer{a, b} {
		l := l
		go func() { done <- l.FrameChecksum(0, CksumIP) }()
	}
	<-done
	<-done
}
