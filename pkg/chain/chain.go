// Package chain implements the protocol chain (spec §4.2): an intrusive
// doubly-linked list of layers forming one stream's header stack.
//
// Per the "cyclic references between layers" design note, the Chain is the
// arena that owns every layer it holds; Handle is the stable, externally
// addressable identity of a layer within that arena, while Prev/Next/
// Parent on layer.Layer itself remain plain pointers that only Chain ever
// wires or unwires — this keeps O(1) traversal for the checksum/variability
// walks in package layer without forcing every step through an arena
// lookup, while still avoiding reference cycles and dangling pointers: a
// layer removed from its Chain is always fully unlinked first.
package chain

import "github.com/pktforge/tgen/pkg/layer"

// Handle addresses one layer within a Chain's arena. The zero Handle and
// negative values are invalid.
type Handle int32

// Valid reports whether h is in the range handles are drawn from (h > 0).
// It does not check that h addresses a live layer; Chain.Layer returns nil
// for a handle that is out of range or has been removed.
func (h Handle) Valid() bool { return h > 0 }

// Chain is an ordered sequence of layers for one stream. It may be nested
// inside one layer of an outer chain ("combo"): that inner chain's Parent
// layer is a layer owned by the outer chain, and the inner chain's leaf
// layers defer cross-chain queries to that outer parent via
// layer.Layer.Parent.
type Chain struct {
	arena  []*layer.Layer // arena[0] is unused; handles are 1-based
	head   Handle
	tail   Handle
	parent *layer.Layer // set when this chain is nested ("combo")
}

// New constructs an empty chain. If parent is non-nil, every layer
// subsequently appended has its Parent pointer wired to it, implementing a
// combo protocol's inner chain.
func New(parent *layer.Layer) *Chain {
	return &Chain{arena: make([]*layer.Layer, 1), parent: parent}
}

// handleOf returns l's handle, or the zero Handle if l is not in this
// chain's arena.
func (c *Chain) handleOf(l *layer.Layer) Handle {
	if l == nil {
		return 0
	}
	for i := 1; i < len(c.arena); i++ {
		if c.arena[i] == l {
			return Handle(i)
		}
	}
	return 0
}

// Layer dereferences a handle to its layer, or nil if the handle is invalid
// or has since been removed.
func (c *Chain) Layer(h Handle) *layer.Layer {
	if !h.Valid() || int(h) >= len(c.arena) {
		return nil
	}
	return c.arena[h]
}

// Len returns the number of live layers in the chain.
func (c *Chain) Len() int {
	n := 0
	for i := 1; i < len(c.arena); i++ {
		if c.arena[i] != nil {
			n++
		}
	}
	return n
}

// Head returns the handle of the first layer, or the zero Handle if empty.
func (c *Chain) Head() Handle { return c.head }

// Tail returns the handle of the last layer, or the zero Handle if empty.
func (c *Chain) Tail() Handle { return c.tail }

// Append adds l as the new tail of the chain, linking it after the current
// tail. l must not already belong to another chain.
func (c *Chain) Append(l *layer.Layer) Handle {
	l.Parent = c.parent
	l.Prev = nil
	l.Next = nil

	c.arena = append(c.arena, l)
	h := Handle(len(c.arena) - 1)

	if tail := c.Layer(c.tail); tail != nil {
		tail.Next = l
		l.Prev = tail
	} else {
		c.head = h
	}
	c.tail = h
	return h
}

// Prepend adds l as the new head of the chain, linking it before the
// current head.
func (c *Chain) Prepend(l *layer.Layer) Handle {
	l.Parent = c.parent
	l.Prev = nil
	l.Next = nil

	c.arena = append(c.arena, l)
	h := Handle(len(c.arena) - 1)

	if head := c.Layer(c.head); head != nil {
		head.Prev = l
		l.Next = head
	} else {
		c.tail = h
	}
	c.head = h
	return h
}

// Remove unlinks the layer at h from the chain, relinking its neighbours,
// and makes it available for destruction. Removing an already-removed or
// unknown handle is a no-op.
func (c *Chain) Remove(h Handle) {
	l := c.Layer(h)
	if l == nil {
		return
	}
	if l.Prev != nil {
		l.Prev.Next = l.Next
	} else {
		c.head = c.handleOf(l.Next)
	}
	if l.Next != nil {
		l.Next.Prev = l.Prev
	} else {
		c.tail = c.handleOf(l.Prev)
	}
	l.Prev, l.Next, l.Parent = nil, nil, nil
	c.arena[h] = nil
}

// Each calls fn for every live layer, head to tail.
func (c *Chain) Each(fn func(Handle, *layer.Layer)) {
	for h := c.head; h.Valid(); {
		l := c.Layer(h)
		if l == nil {
			return
		}
		next := c.handleOf(l.Next)
		fn(h, l)
		h = next
	}
}

// Layers returns every live layer, head to tail, as a plain slice — useful
// for serialization and testing where the handle indirection adds nothing.
func (c *Chain) Layers() []*layer.Layer {
	out := make([]*layer.Layer, 0, c.Len())
	c.Each(func(_ Handle, l *layer.Layer) { out = append(out, l) })
	return out
}

// Render concatenates ProtocolFrameValue(streamIndex, false) over every
// layer in the chain, head to tail, producing the full packet bytes.
func (c *Chain) Render(streamIndex int) []byte {
	var out []byte
	c.Each(func(_ Handle, l *layer.Layer) {
		out = append(out, l.ProtocolFrameValue(streamIndex, false)...)
	})
	return out
}

// Size returns the sum of ProtocolFrameSize over every layer in the chain.
func (c *Chain) Size(streamIndex int) int {
	size := 0
	c.Each(func(_ Handle, l *layer.Layer) { size += l.ProtocolFrameSize(streamIndex) })
	return size
}
