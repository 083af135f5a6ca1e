package layer

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Field indices below are documentation for the fixed field tables each
// constructor builds; they are not exported since callers address fields
// by position via FieldData, matching the original's FieldAttrib dispatch.

func init() {
	Register(KindEthernet, &VTable{
		Name:       func(l *Layer) string { return "Ethernet II" },
		ProtocolID: ethProtocolID,
	})
	Register(KindDot1Q, &VTable{
		Name: func(l *Layer) string { return "802.1Q" },
	})
	Register(KindIP4, &VTable{
		Name:                 func(l *Layer) string { return "Internet Protocol Version 4" },
		FieldData:            ip4FieldData,
		ProtocolID:           ip4ProtocolID,
		PseudoHeaderChecksum: ip4PseudoHeaderChecksum,
	})
	Register(KindIP6, &VTable{
		Name: func(l *Layer) string { return "Internet Protocol Version 6" },
	})
	Register(KindUDP, &VTable{
		Name:      func(l *Layer) string { return "User Datagram Protocol" },
		FieldData: udpFieldData,
	})
	Register(KindTCP, &VTable{
		Name:      func(l *Layer) string { return "Transmission Control Protocol" },
		FieldData: tcpFieldData,
	})
	Register(KindICMP, &VTable{
		Name: func(l *Layer) string { return "Internet Control Message Protocol" },
	})
	Register(KindIGMP, &VTable{
		Name:       func(l *Layer) string { return "Internet Group Management Protocol" },
		ProtocolID: func(l *Layer, kind ProtocolIDKind) uint32 { return 2 },
	})
	Register(KindMLD, &VTable{
		Name: func(l *Layer) string { return "Multicast Listener Discovery" },
	})
	Register(KindMLDv2Report, &VTable{
		Name:      func(l *Layer) string { return "MLDv2 Multicast Listener Report" },
		FieldData: mldv2ReportFieldData,
	})
	Register(KindARP, &VTable{
		Name: func(l *Layer) string { return "Address Resolution Protocol" },
	})
	Register(KindPayload, &VTable{
		Name:         func(l *Layer) string { return "Payload" },
		SizeVariable: func(l *Layer) bool { return l.Fields[0].Flags == FieldMeta && payloadIsVariable(l) },
	})
	Register(KindUserScript, &VTable{
		Name:          func(l *Layer) string { return "User Script" },
		FieldData:     userScriptFieldData,
		SetFieldData:  userScriptSetFieldData,
		FrameVariable: func(l *Layer) bool { return strings.Contains(userScriptTemplate(l), "{VAR}") },
	})
}

// NewEthernet builds an Ethernet II layer with destination, source and
// ethertype fields. EtherType is written into the frame exactly as given;
// a zero value is not filled in from the payload chain at render time.
func NewEthernet(dst, src [6]byte, etherType uint16) *Layer {
	etb := make([]byte, 2)
	binary.BigEndian.PutUint16(etb, etherType)
	return New(KindEthernet, []Field{
		{Name: "Destination", BitSize: 48, FrameValue: dst[:]},
		{Name: "Source", BitSize: 48, FrameValue: src[:]},
		{Name: "EtherType", BitSize: 16, FrameValue: etb, NumericValue: uint64(etherType)},
	})
}

func ethProtocolID(l *Layer, kind ProtocolIDKind) uint32 {
	if kind == ProtocolIDEth {
		return uint32(l.Fields[2].NumericValue)
	}
	return 0
}

// NewIP4 builds an IPv4 layer: version/IHL, DSCP/ECN, total length (field 4,
// 16 bits, resolved at render time from the layer's own + payload size),
// identification, flags/fragment offset, TTL, protocol, header checksum
// (field 10, a Checksum field), source and destination addresses.
func NewIP4(src, dst [4]byte, ttl, proto uint8) *Layer {
	return New(KindIP4, []Field{
		{Name: "Version", BitSize: 4, NumericValue: 4},
		{Name: "HeaderLength", BitSize: 4, NumericValue: 5},
		{Name: "DSCP", BitSize: 6},
		{Name: "ECN", BitSize: 2},
		{Name: "TotalLength", BitSize: 16},
		{Name: "Identification", BitSize: 16},
		{Name: "Flags", BitSize: 3},
		{Name: "FragmentOffset", BitSize: 13},
		{Name: "TTL", BitSize: 8, NumericValue: uint64(ttl)},
		{Name: "Protocol", BitSize: 8, NumericValue: uint64(proto)},
		{Name: "HeaderChecksum", BitSize: 16, Flags: FieldChecksum},
		{Name: "Source", BitSize: 32, FrameValue: src[:]},
		{Name: "Destination", BitSize: 32, FrameValue: dst[:]},
	})
}

func ip4FieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	switch {
	case i == 4 && attr == AttrFrameValue: // TotalLength
		total := l.ProtocolFrameSize(streamIndex) + payloadSize(l, streamIndex)
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(total))
		return b
	case i == 4 && attr == AttrBitSize:
		return 16
	case i == 10 && attr == AttrFrameValue: // HeaderChecksum
		cs := l.FrameChecksum(streamIndex, CksumIP)
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, cs)
		return b
	case i == 10 && attr == AttrBitSize:
		return 16
	case i == 9 && attr == AttrNumericValue:
		return l.Fields[9].NumericValue
	default:
		return defaultFieldData(l, i, attr, streamIndex)
	}
}

func ip4ProtocolID(l *Layer, kind ProtocolIDKind) uint32 {
	switch kind {
	case ProtocolIDEth:
		return 0x0800
	case ProtocolIDLlc:
		return 0x060603
	case ProtocolIDIP:
		return uint32(l.Fields[9].NumericValue)
	default:
		return 0
	}
}

// ip4PseudoHeaderChecksum builds the 12-byte IPv4 pseudo header (source
// address, destination address, a zero byte, protocol, and upper-layer
// segment length) and returns its one's-complement checksum, the
// CksumIpPseudo contribution HeaderChecksum's walk needs from an IP4 layer
// sitting above a TCP/UDP (or MLDv2Report-style) checksum.
func ip4PseudoHeaderChecksum(l *Layer, streamIndex int) uint16 {
	buf := make([]byte, 12)
	copy(buf[0:4], l.Fields[11].FrameValue) // Source
	copy(buf[4:8], l.Fields[12].FrameValue) // Destination
	buf[8] = 0
	buf[9] = byte(l.Fields[9].NumericValue) // Protocol
	binary.BigEndian.PutUint16(buf[10:12], uint16(payloadSize(l, streamIndex)))
	return cksumIP(buf)
}

func payloadSize(l *Layer, streamIndex int) int {
	size := 0
	for p := l.Next; p != nil; p = p.Next {
		size += p.ProtocolFrameSize(streamIndex)
	}
	if l.Parent != nil {
		size += payloadSize(l.Parent, streamIndex)
	}
	return size
}

// NewUDP builds a UDP layer: source port, destination port, length
// (computed), checksum (computed against the IPv4 pseudo-header).
func NewUDP(srcPort, dstPort uint16) *Layer {
	return New(KindUDP, []Field{
		{Name: "SourcePort", BitSize: 16, NumericValue: uint64(srcPort)},
		{Name: "DestinationPort", BitSize: 16, NumericValue: uint64(dstPort)},
		{Name: "Length", BitSize: 16},
		{Name: "Checksum", BitSize: 16, Flags: FieldChecksum},
	})
}

func udpFieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	switch {
	case i == 0 && attr == AttrFrameValue:
		return be16(l.Fields[0].NumericValue)
	case i == 1 && attr == AttrFrameValue:
		return be16(l.Fields[1].NumericValue)
	case i == 2 && attr == AttrFrameValue:
		total := l.ProtocolFrameSize(streamIndex) + payloadSize(l, streamIndex)
		return be16(uint64(total))
	case i == 2 && attr == AttrBitSize:
		return 16
	case i == 3 && attr == AttrFrameValue:
		return be16(uint64(l.FrameChecksum(streamIndex, CksumTcpUdp)))
	case i == 3 && attr == AttrBitSize:
		return 16
	default:
		return defaultFieldData(l, i, attr, streamIndex)
	}
}

// NewTCP builds a minimal TCP layer: source port, destination port,
// sequence number, acknowledgment number, header length/flags, window,
// checksum (computed), urgent pointer.
func NewTCP(srcPort, dstPort uint16, seq, ack uint32) *Layer {
	return New(KindTCP, []Field{
		{Name: "SourcePort", BitSize: 16, NumericValue: uint64(srcPort)},
		{Name: "DestinationPort", BitSize: 16, NumericValue: uint64(dstPort)},
		{Name: "SequenceNumber", BitSize: 32, NumericValue: uint64(seq)},
		{Name: "AckNumber", BitSize: 32, NumericValue: uint64(ack)},
		{Name: "HeaderLength", BitSize: 4, NumericValue: 5},
		{Name: "Reserved", BitSize: 6},
		{Name: "Flags", BitSize: 6, NumericValue: 0x02}, // SYN
		{Name: "Window", BitSize: 16, NumericValue: 8192},
		{Name: "Checksum", BitSize: 16, Flags: FieldChecksum},
		{Name: "UrgentPointer", BitSize: 16},
	})
}

func tcpFieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	switch {
	case i == 0 && attr == AttrFrameValue:
		return be16(l.Fields[0].NumericValue)
	case i == 1 && attr == AttrFrameValue:
		return be16(l.Fields[1].NumericValue)
	case i == 2 && attr == AttrFrameValue:
		return be32(l.Fields[2].NumericValue)
	case i == 3 && attr == AttrFrameValue:
		return be32(l.Fields[3].NumericValue)
	case i == 7 && attr == AttrFrameValue:
		return be16(l.Fields[7].NumericValue)
	case i == 8 && attr == AttrFrameValue:
		return be16(uint64(l.FrameChecksum(streamIndex, CksumTcpUdp)))
	case i == 8 && attr == AttrBitSize:
		return 16
	case i == 9 && attr == AttrFrameValue:
		return be16(l.Fields[9].NumericValue)
	default:
		return defaultFieldData(l, i, attr, streamIndex)
	}
}

// NewMLDv2Report builds an MLDv2 Multicast Listener Report layer: type,
// reserved, checksum (field 2, a CksumTcpUdp checksum; its pseudo-header
// part comes from the layer beneath, and is 0 under IP6, which registers no
// PseudoHeaderChecksum hook), reserved2, number of group records.
func NewMLDv2Report(numRecords uint16) *Layer {
	nr := make([]byte, 2)
	binary.BigEndian.PutUint16(nr, numRecords)
	return New(KindMLDv2Report, []Field{
		{Name: "Type", BitSize: 8, NumericValue: 143},
		{Name: "Reserved", BitSize: 8},
		{Name: "Checksum", BitSize: 16, Flags: FieldChecksum},
		{Name: "Reserved2", BitSize: 16},
		{Name: "NumberOfGroupRecords", BitSize: 16, FrameValue: nr, NumericValue: uint64(numRecords)},
	})
}

func mldv2ReportFieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	switch {
	case i == 2 && attr == AttrFrameValue:
		return be16(uint64(l.FrameChecksum(streamIndex, CksumTcpUdp)))
	case i == 2 && attr == AttrBitSize:
		return 16
	default:
		return defaultFieldData(l, i, attr, streamIndex)
	}
}

// NewPayload builds a filler/pattern Payload layer of a fixed length in
// bytes, repeating pattern to fill.
func NewPayload(length int, pattern byte) *Layer {
	b := make([]byte, length)
	for i := range b {
		b[i] = pattern
	}
	return New(KindPayload, []Field{
		{Name: "Data", BitSize: length * 8, FrameValue: b},
	})
}

func payloadIsVariable(l *Layer) bool { return false }

// NewUserScript builds a raw user-script layer: a single variable-length
// frame field whose value is an arbitrary user-supplied hex/text template.
// A "{VAR}" marker in the template is replaced with the decimal
// stream index at render time; IsFrameValueVariable reports true iff the
// template contains that marker.
func NewUserScript(template string) *Layer {
	return New(KindUserScript, []Field{
		{Name: "Script", TextValue: template},
	})
}

func userScriptTemplate(l *Layer) string { return l.Fields[0].TextValue }

func userScriptFieldData(l *Layer, i int, attr Attr, streamIndex int) any {
	if i != 0 {
		return defaultFieldData(l, i, attr, streamIndex)
	}
	switch attr {
	case AttrTextValue:
		return l.Fields[0].TextValue
	case AttrFrameValue:
		rendered := strings.ReplaceAll(l.Fields[0].TextValue, "{VAR}", strconv.Itoa(streamIndex))
		b, err := parseHexOrText(rendered)
		if err != nil {
			return []byte{}
		}
		return b
	case AttrBitSize:
		rendered := strings.ReplaceAll(l.Fields[0].TextValue, "{VAR}", strconv.Itoa(streamIndex))
		b, _ := parseHexOrText(rendered)
		return len(b) * 8
	default:
		return defaultFieldData(l, i, attr, streamIndex)
	}
}

func userScriptSetFieldData(l *Layer, i int, value any, attr Attr) bool {
	if i != 0 || attr != AttrTextValue {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	l.Fields[0].TextValue = s
	return true
}

// parseHexOrText accepts either a "0xAB CD EF"-style hex template or, if it
// doesn't parse as hex, treats the template as literal ASCII bytes.
func parseHexOrText(s string) ([]byte, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(fields) == 0 {
		return []byte(s), nil
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		var b byte
		if _, err := fmt.Sscanf(f, "%02x", &b); err != nil {
			return []byte(s), nil
		}
		out = append(out, b)
	}
	return out, nil
}

func be16(v uint64) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func be32(v uint64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}
