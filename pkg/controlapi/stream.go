package controlapi

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pktforge/tgen/pkg/chain"
	"github.com/pktforge/tgen/pkg/layer"
)

// buildLayer constructs a layer.Layer from a LayerSpec's kind and named
// field overrides. Unknown kinds and malformed field values return an
// error rather than silently building a zero-value layer.
func buildLayer(spec LayerSpec) (*layer.Layer, error) {
	switch spec.Kind {
	case "ethernet":
		dst, err := parseMAC(spec.Fields["dst"])
		if err != nil {
			return nil, fmt.Errorf("ethernet.dst: %w", err)
		}
		src, err := parseMAC(spec.Fields["src"])
		if err != nil {
			return nil, fmt.Errorf("ethernet.src: %w", err)
		}
		return layer.NewEthernet(dst, src, 0), nil

	case "ip4":
		src, err := parseIPv4(spec.Fields["src"])
		if err != nil {
			return nil, fmt.Errorf("ip4.src: %w", err)
		}
		dst, err := parseIPv4(spec.Fields["dst"])
		if err != nil {
			return nil, fmt.Errorf("ip4.dst: %w", err)
		}
		ttl, err := parseUint8(spec.Fields["ttl"], 64)
		if err != nil {
			return nil, fmt.Errorf("ip4.ttl: %w", err)
		}
		proto, err := parseUint8(spec.Fields["protocol"], 17)
		if err != nil {
			return nil, fmt.Errorf("ip4.protocol: %w", err)
		}
		return layer.NewIP4(src, dst, ttl, proto), nil

	case "udp":
		srcPort, err := parseUint16(spec.Fields["src_port"], 1024)
		if err != nil {
			return nil, fmt.Errorf("udp.src_port: %w", err)
		}
		dstPort, err := parseUint16(spec.Fields["dst_port"], 1024)
		if err != nil {
			return nil, fmt.Errorf("udp.dst_port: %w", err)
		}
		return layer.NewUDP(srcPort, dstPort), nil

	case "tcp":
		srcPort, err := parseUint16(spec.Fields["src_port"], 1024)
		if err != nil {
			return nil, fmt.Errorf("tcp.src_port: %w", err)
		}
		dstPort, err := parseUint16(spec.Fields["dst_port"], 1024)
		if err != nil {
			return nil, fmt.Errorf("tcp.dst_port: %w", err)
		}
		return layer.NewTCP(srcPort, dstPort, 0, 0), nil

	case "mldv2report":
		n, err := parseUint16(spec.Fields["num_records"], 0)
		if err != nil {
			return nil, fmt.Errorf("mldv2report.num_records: %w", err)
		}
		return layer.NewMLDv2Report(n), nil

	case "payload":
		length, err := strconv.Atoi(spec.Fields["length"])
		if err != nil {
			length = 64
		}
		pattern := byte(0)
		if p, err := parseUint8(spec.Fields["pattern"], 0); err == nil {
			pattern = p
		}
		return layer.NewPayload(length, pattern), nil

	case "userscript":
		return layer.NewUserScript(spec.Fields["template"]), nil

	default:
		return nil, fmt.Errorf("unknown layer kind %q", spec.Kind)
	}
}

func parseMAC(s string) ([6]byte, error) {
	var out [6]byte
	if s == "" {
		return out, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return out, fmt.Errorf("invalid MAC %q", s)
	}
	copy(out[:], hw)
	return out, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	if s == "" {
		return out, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("not an IPv4 address %q", s)
	}
	copy(out[:], v4)
	return out, nil
}

func parseUint8(s string, def uint8) (uint8, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

func parseUint16(s string, def uint16) (uint16, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// renderFrame wires a sequence of freshly built layers into a chain (so
// each layer's Prev/Next/Parent are correct for checksum computation) and
// renders the resulting frame for one stream index.
func renderFrame(layers []*layer.Layer, streamIndex int) []byte {
	c := chain.New(nil)
	for _, l := range layers {
		c.Append(l)
	}
	return c.Render(streamIndex)
}
