package packetlist

import (
	"errors"
	"testing"

	"github.com/pktforge/tgen/pkg/nic/loop"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/tgerr"
)

func newTestList(t *testing.T) (*List, *pool.Pool) {
	t.Helper()
	p := pool.New(64, 256, 16)
	return New(p), p
}

func TestAppendAndSize(t *testing.T) {
	l, _ := newTestList(t)
	l.SetSize(4, 1)
	if ok, err := l.Append(0, 0, []byte{1, 2, 3}); !ok || err != nil {
		t.Fatalf("Append: %v, %v", ok, err)
	}
	if got := l.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1", got)
	}
}

func TestLoopNextSetPartitionsRecords(t *testing.T) {
	l, _ := newTestList(t)
	l.SetSize(6, 2)
	for i := 0; i < 3; i++ {
		l.Append(0, 0, []byte{byte(i)})
	}
	l.LoopNextSet(3, 1, 0, 0)
	for i := 3; i < 6; i++ {
		l.Append(0, 0, []byte{byte(i)})
	}
	l.LoopNextSet(3, 1, 0, 0)

	l.mu.Lock()
	sets := l.sets
	l.mu.Unlock()

	if len(sets) != 2 {
		t.Fatalf("len(sets) = %d, want 2", len(sets))
	}
	if sets[0].StartOffset != 0 || sets[0].EndOffset != 2 {
		t.Fatalf("sets[0] = %+v", sets[0])
	}
	if sets[1].StartOffset != 3 || sets[1].EndOffset != 5 {
		t.Fatalf("sets[1] = %+v", sets[1])
	}
}

func TestClearRequiresStoppedTransmitter(t *testing.T) {
	l, _ := newTestList(t)
	l.running.Store(true)
	err := l.Clear()
	if !errors.Is(err, tgerr.TransmitterBusy) {
		t.Fatalf("Clear while running = %v, want TransmitterBusy", err)
	}
	l.running.Store(false)
}

func TestClearReturnsBuffersToPool(t *testing.T) {
	l, p := newTestList(t)
	l.SetSize(2, 1)
	l.Append(0, 0, []byte{1})
	l.Append(0, 0, []byte{2})
	before := p.CurrentCount()
	if err := l.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	after := p.CurrentCount()
	if after <= before {
		t.Fatalf("CurrentCount after Clear = %d, want > %d", after, before)
	}
	if l.Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", l.Size())
	}
}

func TestTopSpeedFlagTracksTiming(t *testing.T) {
	l, _ := newTestList(t)
	l.SetSize(2, 1)
	if !l.TopSpeed() {
		t.Fatalf("fresh list should be TopSpeed")
	}
	l.Append(1, 0, []byte{1}) // nonzero timestamp disables top speed
	if l.TopSpeed() {
		t.Fatalf("TopSpeed should be false after a timestamped append")
	}
}

// TestTransmitReplaysOrderedSets is the end-to-end "transmit replay"
// scenario: two packet sets, each looped once, are replayed in order onto a
// loopback driver and arrive at RX in the order they were appended.
func TestTransmitReplaysOrderedSets(t *testing.T) {
	l, _ := newTestList(t)
	l.SetSize(4, 2)
	payloads := [][]byte{{0xA}, {0xB}, {0xC}, {0xD}}
	for _, p := range payloads {
		l.Append(0, 0, p)
	}
	l.LoopNextSet(2, 1, 0, 0)
	l.LoopNextSet(2, 1, 0, 0)
	l.SetLoopMode(false, 0, 0)

	drv := loop.New([]string{"loop0"})
	if err := drv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := l.Transmit(drv, 0); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	bufs := make([][]byte, 4)
	for i := range bufs {
		bufs[i] = make([]byte, 16)
	}
	n, lengths, err := drv.RxBurst(0, 0, bufs)
	if err != nil {
		t.Fatalf("RxBurst: %v", err)
	}
	if n != 4 {
		t.Fatalf("RxBurst n = %d, want 4", n)
	}
	for i, want := range payloads {
		if lengths[i] != len(want) || bufs[i][0] != want[0] {
			t.Fatalf("packet %d = %v (len %d), want %v", i, bufs[i][:lengths[i]], lengths[i], want)
		}
	}
}

func TestStopIsNoOpWhenNotRunning(t *testing.T) {
	l, _ := newTestList(t)
	l.Stop() // must not block or panic
}

type captureRecorder struct{ got [][]byte }

func (c *captureRecorder) Capture(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.got = append(c.got, cp)
}

func TestArmedCaptureSeesTransmittedPackets(t *testing.T) {
	l, _ := newTestList(t)
	l.SetSize(1, 1)
	l.Append(0, 0, []byte{0x42})
	l.LoopNextSet(1, 1, 0, 0)
	l.SetLoopMode(false, 0, 0)

	rec := &captureRecorder{}
	l.ArmCapture(rec)

	drv := loop.New([]string{"loop0"})
	drv.Start(0)
	if err := l.Transmit(drv, 0); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if len(rec.got) != 1 || rec.got[0][0] != 0x42 {
		t.Fatalf("capture = %v, want one packet 0x42", rec.got)
	}
}
