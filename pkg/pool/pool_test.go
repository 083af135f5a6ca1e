package pool

import (
	"errors"
	"testing"

	"github.com/pktforge/tgen/pkg/tgerr"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	p := New(4, 256, 0)
	if p.CurrentCount() != 4 {
		t.Fatalf("CurrentCount = %d, want 4", p.CurrentCount())
	}
	b, err := p.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if p.CurrentCount() != 3 {
		t.Fatalf("CurrentCount after alloc = %d, want 3", p.CurrentCount())
	}
	p.RefDown(b)
	if p.CurrentCount() != 4 {
		t.Fatalf("CurrentCount after RefDown = %d, want 4", p.CurrentCount())
	}
}

func TestAllocExhaustion(t *testing.T) {
	p := New(1, 256, 0)
	if _, err := p.Alloc(); err != nil {
		t.Fatalf("first Alloc: %v", err)
	}
	_, err := p.Alloc()
	if !errors.Is(err, tgerr.PoolExhausted) {
		t.Fatalf("Alloc on exhausted pool = %v, want PoolExhausted", err)
	}
}

func TestRefUpKeepsBufferAlive(t *testing.T) {
	p := New(1, 256, 0)
	b, _ := p.Alloc()
	p.RefUp(b) // refcount now 2, simulating the transmit loop's pre-TX bump
	p.RefDown(b)
	if p.CurrentCount() != 0 {
		t.Fatalf("buffer freed after one RefDown despite RefUp, CurrentCount = %d", p.CurrentCount())
	}
	p.RefDown(b)
	if p.CurrentCount() != 1 {
		t.Fatalf("buffer not freed after matching RefDown, CurrentCount = %d", p.CurrentCount())
	}
}

func TestSetBytesTruncatesToTailroom(t *testing.T) {
	p := New(1, 8, 0)
	b, _ := p.Alloc()
	n, truncated := b.SetBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if !truncated {
		t.Fatalf("expected truncation")
	}
	if n != 8 {
		t.Fatalf("n = %d, want 8", n)
	}
	if b.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", b.Len())
	}
}
