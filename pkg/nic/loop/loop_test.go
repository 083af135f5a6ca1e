package loop

import (
	"testing"

	"github.com/pktforge/tgen/pkg/nic"
)

func TestTxFeedsRx(t *testing.T) {
	d := New([]string{"loop0"})
	if err := d.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sent, err := d.TxBurst(0, 0, [][]byte{{1, 2, 3}, {4, 5}})
	if err != nil || sent != 2 {
		t.Fatalf("TxBurst = %d, %v, want 2, nil", sent, err)
	}

	bufs := [][]byte{make([]byte, 64), make([]byte, 64)}
	n, lengths, err := d.RxBurst(0, 0, bufs)
	if err != nil {
		t.Fatalf("RxBurst: %v", err)
	}
	if n != 2 {
		t.Fatalf("RxBurst n = %d, want 2", n)
	}
	if lengths[0] != 3 || lengths[1] != 2 {
		t.Fatalf("lengths = %v, want [3 2]", lengths)
	}
}

func TestLinkStateRoundTrip(t *testing.T) {
	d := New([]string{"loop0"})
	if err := d.SetLinkState(0, nic.LinkDown); err != nil {
		t.Fatalf("SetLinkState: %v", err)
	}
	state, err := d.LinkGetNowait(0)
	if err != nil {
		t.Fatalf("LinkGetNowait: %v", err)
	}
	if state != nic.LinkDown {
		t.Fatalf("state = %v, want LinkDown", state)
	}
}

func TestDeviceOutOfRange(t *testing.T) {
	d := New([]string{"loop0"})
	if _, err := d.DeviceInfo(5); err != nic.ErrDeviceRange {
		t.Fatalf("DeviceInfo(5) = %v, want ErrDeviceRange", err)
	}
}
