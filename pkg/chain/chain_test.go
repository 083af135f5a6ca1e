package chain

import (
	"bytes"
	"testing"

	"github.com/pktforge/tgen/pkg/layer"
)

func TestAppendLinksSiblings(t *testing.T) {
	c := New(nil)
	eth := layer.NewEthernet([6]byte{}, [6]byte{}, 0x0800)
	ip := layer.NewIP4([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 64, 17)
	udp := layer.NewUDP(1, 2)

	c.Append(eth)
	c.Append(ip)
	c.Append(udp)

	for _, l := range c.Layers() {
		if l.Prev != nil && l.Prev.Next != l {
			t.Fatalf("invariant broken: l.Prev.Next != l for %s", l.Name())
		}
		if l.Next != nil && l.Next.Prev != l {
			t.Fatalf("invariant broken: l.Next.Prev != l for %s", l.Name())
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
}

func TestRemoveRelinksNeighbours(t *testing.T) {
	c := New(nil)
	a := layer.New(layer.KindUnknown, nil)
	b := layer.New(layer.KindUnknown, nil)
	cc := layer.New(layer.KindUnknown, nil)
	hb := c.Append(a)
	hMid := c.Append(b)
	_ = cc
	c.Append(cc)

	c.Remove(hMid)

	if a.Next != cc {
		t.Fatalf("a.Next = %v, want cc", a.Next)
	}
	if cc.Prev != a {
		t.Fatalf("cc.Prev = %v, want a", cc.Prev)
	}
	if got := c.Layer(hb); got != a {
		t.Fatalf("Layer(hb) = %v, want a", got)
	}
}

func TestRemoveHeadAndTail(t *testing.T) {
	c := New(nil)
	only := layer.New(layer.KindUnknown, nil)
	h := c.Append(only)
	c.Remove(h)
	if c.Head().Valid() || c.Tail().Valid() {
		t.Fatalf("Head/Tail still valid after removing only layer")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestRenderConcatenatesLayers(t *testing.T) {
	c := New(nil)
	c.Append(layer.New(layer.KindUnknown, []layer.Field{{Name: "A", BitSize: 8, FrameValue: []byte{0x11}}}))
	c.Append(layer.New(layer.KindUnknown, []layer.Field{{Name: "B", BitSize: 8, FrameValue: []byte{0x22}}}))

	got := c.Render(0)
	want := []byte{0x11, 0x22}
	if !bytes.Equal(got, want) {
		t.Fatalf("Render = %x, want %x", got, want)
	}
}

func TestComboChainDefersToParent(t *testing.T) {
	outer := New(nil)
	combo := layer.New(layer.KindUnknown, nil)
	outer.Append(combo)

	inner := New(combo)
	leaf := layer.New(layer.KindUnknown, []layer.Field{{Name: "X", BitSize: 8, FrameValue: []byte{0}}})
	inner.Append(leaf)

	if leaf.Parent != combo {
		t.Fatalf("leaf.Parent = %v, want combo", leaf.Parent)
	}
}
