// Package layer implements the protocol layer (spec §4.1): one header's
// worth of fields, frame-value synthesis and checksum contribution.
//
// Per the "deep inheritance of protocol classes" design note, there is no
// class hierarchy. A single concrete Layer struct holds a field table and a
// Kind tag; Kind selects a small vtable of function pointers registered in
// a package-level map. Shared default behaviour (ShortName derivation,
// MetaFieldCount, the frame-value bit-packer, the checksum orientations,
// variability propagation, PayloadProtocolID) are free functions over the
// common Layer state, mirroring AbstractProtocol's non-virtual methods.
package layer

import "github.com/pktforge/tgen/pkg/tgerr"

// FieldFlag classifies one field of a layer.
type FieldFlag int

const (
	FieldNormal FieldFlag = iota
	FieldMeta
	FieldChecksum
)

// Attr selects which accessor of a field to read or write.
type Attr int

const (
	AttrName Attr = iota
	AttrBitSize
	AttrNumericValue
	AttrFrameValue
	AttrTextValue
)

// Field is one field of a layer's field table: a name, a bit-width, flags,
// and the three orthogonal value accessors spec §3 describes.
type Field struct {
	Name         string
	BitSize      int // 0 means "use the default: 8*len(FrameValue)"
	Flags        FieldFlag
	NumericValue uint64
	FrameValue   []byte // empty: rendered from NumericValue, big-endian, right-justified in BitSize
	TextValue    string
}

// ProtocolIDKind selects which protocol-number namespace ProtocolID resolves
// against, mirroring the original's ProtocolIdType enum.
type ProtocolIDKind int

const (
	ProtocolIDNone ProtocolIDKind = iota
	ProtocolIDEth
	ProtocolIDIP
	ProtocolIDLlc
)

// NoProtocolID is the sentinel returned when a chain has no next layer and
// no parent to defer to.
const NoProtocolID uint32 = 0xFFFFFFFF

// Kind tags which vtable a Layer uses. There is one concrete Layer struct
// for every protocol; Kind is the only thing that varies behaviour.
type Kind int

const (
	KindUnknown Kind = iota
	KindEthernet
	KindDot1Q
	KindIP4
	KindIP6
	KindUDP
	KindTCP
	KindICMP
	KindIGMP
	KindMLD
	KindMLDv2Report
	KindARP
	KindPayload
	KindUserScript
)

// VTable is the set of per-Kind behaviours a Layer dispatches through,
// replacing virtual-method overrides with a single lookup.
type VTable struct {
	Name          func(l *Layer) string
	FieldCount    func(l *Layer) int
	FieldFlags    func(l *Layer, i int) FieldFlag
	FieldData     func(l *Layer, i int, attr Attr, streamIndex int) any
	SetFieldData  func(l *Layer, i int, value any, attr Attr) bool
	ProtocolID    func(l *Layer, kind ProtocolIDKind) uint32
	FrameVariable func(l *Layer) bool // IsProtocolFrameValueVariable override
	SizeVariable  func(l *Layer) bool // IsProtocolFrameSizeVariable override

	// PseudoHeaderChecksum computes the CksumIpPseudo contribution a
	// TCP/UDP/ICMPv6-family checksum needs from the network layer beneath
	// it: the pseudo header's own one's-complement checksum, built from
	// source/destination address, upper-layer protocol number, and
	// segment length. Only IP4 (and IP6, once it has a field table)
	// register this; every other Kind leaves it nil, and frameChecksum
	// returns 0 for cksumIPPseudo against a Kind that never sits under a
	// transport checksum.
	PseudoHeaderChecksum func(l *Layer, streamIndex int) uint16
}

var vtables = map[Kind]*VTable{}

// Register installs the vtable for kind. Called from each protocol kind's
// init() so the registry is built once at package load.
func Register(kind Kind, vt *VTable) { vtables[kind] = vt }

func vtableFor(kind Kind) *VTable {
	if vt, ok := vtables[kind]; ok {
		return vt
	}
	return defaultVTable
}

// defaultVTable backs any Kind without a registered vtable, and supplies
// the fallback used by registered vtables that leave a hook nil.
var defaultVTable = &VTable{
	Name:       func(l *Layer) string { return "" },
	FieldCount: func(l *Layer) int { return len(l.Fields) },
	FieldFlags: func(l *Layer, i int) FieldFlag {
		if i < 0 || i >= len(l.Fields) {
			return FieldNormal
		}
		return l.Fields[i].Flags
	},
	FieldData:    defaultFieldData,
	SetFieldData: defaultSetFieldData,
	ProtocolID:   func(l *Layer, kind ProtocolIDKind) uint32 { return 0 },
}

// Layer is one protocol header in a stream's chain: a field table plus
// intrusive links to its siblings and an optional parent for nested combo
// chains. Navigation pointers are wired exclusively by the owning Chain
// (package chain); a Layer never mutates Prev/Next/Parent itself.
type Layer struct {
	Kind   Kind
	Fields []Field

	Prev, Next, Parent *Layer

	shortName         string
	shortNameComputed bool
	metaCount         int // -1 = uncomputed
	protoSize         int // -1 = uncomputed
}

// New constructs a layer of the given kind with the given field table.
func New(kind Kind, fields []Field) *Layer {
	return &Layer{Kind: kind, Fields: fields, metaCount: -1, protoSize: -1}
}

func (l *Layer) vt() *VTable { return vtableFor(l.Kind) }

// Name returns the layer's human-readable protocol name, e.g. "IPv4".
func (l *Layer) Name() string {
	if fn := l.vt().Name; fn != nil {
		return fn(l)
	}
	return defaultVTable.Name(l)
}

// ShortName returns the uppercase-letter abbreviation of Name, computed and
// cached on first call. Per the documented source quirk, a name with no
// uppercase letters caches the empty string rather than being recomputed
// on every subsequent call.
func (l *Layer) ShortName() string {
	if l.shortNameComputed {
		return l.shortName
	}
	var abbr []byte
	for _, r := range l.Name() {
		if r >= 'A' && r <= 'Z' {
			abbr = append(abbr, byte(r))
		}
	}
	l.shortName = string(abbr)
	l.shortNameComputed = true
	return l.shortName
}

// FieldCount returns the number of fields (frame and meta) in the layer.
func (l *Layer) FieldCount() int {
	if fn := l.vt().FieldCount; fn != nil {
		return fn(l)
	}
	return defaultVTable.FieldCount(l)
}

// FieldFlags returns the Normal/Meta/Checksum classification of field i.
func (l *Layer) FieldFlags(i int) FieldFlag {
	if fn := l.vt().FieldFlags; fn != nil {
		return fn(l, i)
	}
	return defaultVTable.FieldFlags(l, i)
}

// FieldData reads one attribute of field i, optionally varying with
// streamIndex for fields whose value changes across a stream's packets.
func (l *Layer) FieldData(i int, attr Attr, streamIndex int) any {
	if fn := l.vt().FieldData; fn != nil {
		return fn(l, i, attr, streamIndex)
	}
	return defaultVTable.FieldData(l, i, attr, streamIndex)
}

// SetFieldData writes attr of field i. Returns false if the field or
// attribute is not settable.
func (l *Layer) SetFieldData(i int, value any, attr Attr) bool {
	if fn := l.vt().SetFieldData; fn != nil {
		return fn(l, i, value, attr)
	}
	return defaultVTable.SetFieldData(l, i, value, attr)
}

// ProtocolID returns this layer's own protocol number in the given
// namespace, e.g. IPv4 returns 0x0800 for ProtocolIDEth.
func (l *Layer) ProtocolID(kind ProtocolIDKind) uint32 {
	if fn := l.vt().ProtocolID; fn != nil {
		return fn(l, kind)
	}
	return defaultVTable.ProtocolID(l, kind)
}

// MetaFieldCount returns the count of fields with the Meta flag, cached on
// first access.
func (l *Layer) MetaFieldCount() int {
	if l.metaCount < 0 {
		c := 0
		for i := 0; i < l.FieldCount(); i++ {
			if l.FieldFlags(i) == FieldMeta {
				c++
			}
		}
		l.metaCount = c
	}
	return l.metaCount
}

// FrameFieldCount returns FieldCount minus MetaFieldCount.
func (l *Layer) FrameFieldCount() int {
	return l.FieldCount() - l.MetaFieldCount()
}

func defaultFieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	if i < 0 || i >= len(l.Fields) {
		switch attr {
		case AttrName:
			return ""
		case AttrFrameValue:
			return []byte{}
		case AttrTextValue:
			return ""
		default:
			return uint64(0)
		}
	}
	f := &l.Fields[i]
	switch attr {
	case AttrName:
		return f.Name
	case AttrBitSize:
		if f.BitSize > 0 {
			return f.BitSize
		}
		if f.Flags == FieldChecksum {
			panic("layer: checksum fields must declare BitSize explicitly, not use the FrameValue-length default")
		}
		return len(f.FrameValue) * 8
	case AttrNumericValue:
		return f.NumericValue
	case AttrFrameValue:
		if len(f.FrameValue) == 0 && f.BitSize > 0 {
			b := make([]byte, (f.BitSize+7)/8)
			v := f.NumericValue
			for j := len(b) - 1; j >= 0; j-- {
				b[j] = byte(v)
				v >>= 8
			}
			return b
		}
		return f.FrameValue
	case AttrTextValue:
		return f.TextValue
	default:
		panic("layer: unhandled field attribute")
	}
}

func defaultSetFieldData(l *Layer, i int, value any, attr Attr) bool {
	if i < 0 || i >= len(l.Fields) {
		return false
	}
	f := &l.Fields[i]
	switch attr {
	case AttrNumericValue:
		v, ok := toUint64(value)
		if !ok {
			return false
		}
		f.NumericValue = v
		return true
	case AttrFrameValue:
		b, ok := value.([]byte)
		if !ok {
			return false
		}
		f.FrameValue = b
		return true
	case AttrTextValue:
		s, ok := value.(string)
		if !ok {
			return false
		}
		f.TextValue = s
		return true
	default:
		return false
	}
}

func toUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case uint32:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case int:
		return uint64(x), true
	default:
		return 0, false
	}
}

// ProtocolFrameSize returns the layer's size in bytes: the sum of non-meta
// field bit sizes rounded up to a whole byte, cached on first call.
func (l *Layer) ProtocolFrameSize(streamIndex int) int {
	if l.protoSize < 0 {
		bits := 0
		for i := 0; i < l.FieldCount(); i++ {
			if l.FieldFlags(i) != FieldMeta {
				bits += int(l.FieldData(i, AttrBitSize, streamIndex).(int))
			}
		}
		l.protoSize = (bits + 7) / 8
	}
	return l.protoSize
}

// IsFrameValueVariable reports whether the layer varies one or more fields
// across packets of the same stream.
func (l *Layer) IsFrameValueVariable() bool {
	if fn := l.vt().FrameVariable; fn != nil {
		return fn(l)
	}
	return false
}

// IsFrameSizeVariable reports whether the layer's own size varies across
// packets of the same stream.
func (l *Layer) IsFrameSizeVariable() bool {
	if fn := l.vt().SizeVariable; fn != nil {
		return fn(l)
	}
	return false
}

// IsPayloadValueVariable reports whether any later layer (walking Next,
// then deferring to Parent) varies its frame value.
func (l *Layer) IsPayloadValueVariable() bool {
	for p := l.Next; p != nil; p = p.Next {
		if p.IsFrameValueVariable() {
			return true
		}
	}
	if l.Parent != nil && l.Parent.IsPayloadValueVariable() {
		return true
	}
	return false
}

// IsPayloadSizeVariable reports whether any later layer varies its size.
func (l *Layer) IsPayloadSizeVariable() bool {
	for p := l.Next; p != nil; p = p.Next {
		if p.IsFrameSizeVariable() {
			return true
		}
	}
	if l.Parent != nil && l.Parent.IsPayloadSizeVariable() {
		return true
	}
	return false
}

// PayloadProtocolID returns the protocol id of whichever layer immediately
// follows this one: Next if present, else Parent's payload id, else the
// sentinel NoProtocolID.
func (l *Layer) PayloadProtocolID(kind ProtocolIDKind) uint32 {
	if l.Next != nil {
		return l.Next.ProtocolID(kind)
	}
	if l.Parent != nil {
		return l.Parent.PayloadProtocolID(kind)
	}
	return NoProtocolID
}

// ProtocolFrameValue renders the layer's non-meta fields into a byte slice,
// per the frame-value serialization algorithm of spec §4.1: fields are
// walked in declared order and packed MSB-first into the output, with
// checksum fields zeroed when forCksum is true.
func (l *Layer) ProtocolFrameValue(streamIndex int, forCksum bool) []byte {
	var proto []byte
	var lastBitPos uint

	for i := 0; i < l.FieldCount(); i++ {
		flags := l.FieldFlags(i)
		if flags == FieldMeta {
			continue
		}
		bits := l.FieldData(i, AttrBitSize, streamIndex).(int)
		if bits == 0 {
			continue
		}
		if bits < 0 {
			panic("layer: negative field bit size")
		}

		var field []byte
		if forCksum && flags == FieldChecksum {
			field = make([]byte, (bits+7)/8)
		} else {
			fv := l.FieldData(i, AttrFrameValue, streamIndex)
			b, _ := fv.([]byte)
			field = b
		}

		switch {
		case bits == len(field)*8:
			proto, lastBitPos = appendAligned(proto, field, lastBitPos)
		case bits < len(field)*8:
			proto, lastBitPos = appendNarrowed(proto, field, uint(bits), lastBitPos)
		default:
			panic("layer: declared BitSize exceeds FrameValue length")
		}
	}
	return proto
}

// appendAligned appends a field whose declared bit size exactly matches its
// byte length, shifting across the byte boundary left open by a previous
// sub-byte field.
func appendAligned(proto, field []byte, lastBitPos uint) ([]byte, uint) {
	if lastBitPos == 0 {
		return append(proto, field...), 0
	}
	proto[len(proto)-1] |= field[0] >> lastBitPos
	for j := 0; j < len(field)-1; j++ {
		proto = append(proto, field[j]<<lastBitPos|field[j+1]>>lastBitPos)
	}
	return proto, lastBitPos
}

// appendNarrowed appends a field whose declared bit size is smaller than
// its byte length (right-justified in field, e.g. a 4-bit nibble stored in
// a one-byte FrameValue), packing only the low `bits` bits.
func appendNarrowed(proto, field []byte, bits, lastBitPos uint) ([]byte, uint) {
	v := uint(len(field)*8) - bits

	if lastBitPos == 0 {
		for j := 0; j < len(field); j++ {
			c := field[j] << v
			if j+1 < len(field) {
				c |= field[j+1] >> (8 - v)
			}
			proto = append(proto, c)
		}
		return proto, (lastBitPos + bits) % 8
	}

	for j := 0; j < len(field); j++ {
		c := field[j] << v
		if j+1 < len(field) {
			c |= field[j+1] >> (8 - v)
		}
		d := proto[len(proto)-1]
		proto[len(proto)-1] = d | (c >> lastBitPos)
		if bits > uint(8*j)+(8-v) {
			proto = append(proto, c<<(8-lastBitPos))
		}
	}
	return proto, (lastBitPos + bits) % 8
}

// CksumKind selects the checksum algorithm FrameChecksum etc. compute.
type CksumKind int

const (
	CksumIP CksumKind = iota
	CksumTcpUdp
	cksumIPPseudo // internal: used only by HeaderChecksum's recursive walk
)

const maxChecksumRecursion = 10

// FrameChecksum computes the checksum of the requested kind over the
// layer's own serialized bytes, with checksum fields zeroed. Recursion
// depth is threaded through the call as a plain parameter rather than
// kept in a package-level counter: FrameChecksum, HeaderChecksum, and
// PayloadChecksum all call back into each other, and concurrent requests
// (pkg/controlapi's handlers run one per HTTP goroutine) each walk their
// own chain, so a shared global would race across requests and could
// panic on depth that belongs to an unrelated call. Depth greater than 9
// is a programming error (a checksum field not implementing its own
// BitSize, causing protocolFrameValue to recurse into itself) and the
// function panics rather than looping forever, per spec §4.1/§7.
func (l *Layer) FrameChecksum(streamIndex int, kind CksumKind) uint16 {
	return l.frameChecksum(streamIndex, kind, 0)
}

func (l *Layer) frameChecksum(streamIndex int, kind CksumKind, depth int) uint16 {
	if depth >= maxChecksumRecursion {
		panic(tgerr.New(tgerr.ProtocolRecursion, "layer.FrameChecksum"))
	}

	switch kind {
	case CksumIP:
		return cksumIP(l.ProtocolFrameValue(streamIndex, true))
	case CksumTcpUdp:
		header := ^l.frameChecksum(streamIndex, CksumIP, depth+1)
		payload := ^l.payloadChecksum(streamIndex, CksumIP, depth+1)
		pseudo := ^l.headerChecksum(streamIndex, cksumIPPseudo, depth+1)
		sum := uint32(header) + uint32(payload) + uint32(pseudo)
		for sum>>16 != 0 {
			sum = (sum & 0xFFFF) + (sum >> 16)
		}
		return ^uint16(sum)
	case cksumIPPseudo:
		if hook := l.vt().PseudoHeaderChecksum; hook != nil {
			return hook(l, streamIndex)
		}
		return 0
	default:
		return 0
	}
}

// HeaderChecksum computes the checksum of all layers before this one: it
// walks Prev, then delegates to Parent.HeaderChecksum. Used for
// IP-pseudo-header contributions to a TCP/UDP checksum.
func (l *Layer) HeaderChecksum(streamIndex int, kind CksumKind) uint16 {
	return l.headerChecksum(streamIndex, kind, 0)
}

func (l *Layer) headerChecksum(streamIndex int, kind CksumKind, depth int) uint16 {
	if depth >= maxChecksumRecursion {
		panic(tgerr.New(tgerr.ProtocolRecursion, "layer.HeaderChecksum"))
	}
	var sum uint32
	for p := l.Prev; p != nil; p = p.Prev {
		sum += uint32(^p.frameChecksum(streamIndex, kind, depth+1))
	}
	if l.Parent != nil {
		sum += uint32(^l.Parent.headerChecksum(streamIndex, kind, depth+1))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// PayloadChecksum computes the checksum over subsequent layers: it walks
// Next, then delegates to Parent.PayloadChecksum.
func (l *Layer) PayloadChecksum(streamIndex int, kind CksumKind) uint16 {
	return l.payloadChecksum(streamIndex, kind, 0)
}

func (l *Layer) payloadChecksum(streamIndex int, kind CksumKind, depth int) uint16 {
	if depth >= maxChecksumRecursion {
		panic(tgerr.New(tgerr.ProtocolRecursion, "layer.PayloadChecksum"))
	}
	var sum uint32
	for p := l.Next; p != nil; p = p.Next {
		sum += uint32(^p.frameChecksum(streamIndex, kind, depth+1))
	}
	if l.Parent != nil {
		sum += uint32(^l.Parent.payloadChecksum(streamIndex, kind, depth+1))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// cksumIP computes the one's-complement 16-bit internet checksum of b,
// big-endian, folding carries and complementing the final sum.
func cksumIP(b []byte) uint16 {
	var sum uint32
	i := 0
	for ; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if i < len(b) {
		sum += uint32(b[i]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
