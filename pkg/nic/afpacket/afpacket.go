// Package afpacket implements nic.Driver using AF_PACKET raw sockets via
// github.com/mdlayher/packet, sending and receiving real Ethernet frames on
// Linux interfaces without requiring DPDK or cgo. Interface enumeration and
// non-blocking link state use github.com/vishvananda/netlink in place of
// the original's rte_eth_dev_info_get/rte_eth_link_get_nowait.
package afpacket

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/mdlayher/packet"
	"github.com/vishvananda/netlink"

	"github.com/pktforge/tgen/pkg/nic"
)

type device struct {
	link netlink.Link
	conn *packet.Conn

	inPackets, inBytes   atomic.Uint64
	outPackets, outBytes atomic.Uint64
	inErrors, inDrops    atomic.Uint64
}

// Driver enumerates Linux interfaces matching an allow-list and opens an
// AF_PACKET socket on each as it's configured.
type Driver struct {
	allow   map[string]bool
	devices []*device
}

// New builds a Driver. If allow is non-empty, only interfaces whose name
// appears in it are enumerated; an empty allow-list enumerates every
// non-loopback interface netlink reports.
func New(allow []string) (*Driver, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("afpacket: enumerate links: %w", err)
	}

	allowSet := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowSet[a] = true
	}

	d := &Driver{allow: allowSet}
	for _, l := range links {
		name := l.Attrs().Name
		if name == "lo" {
			continue
		}
		if len(allowSet) > 0 && !allowSet[name] {
			continue
		}
		d.devices = append(d.devices, &device{link: l})
	}
	return d, nil
}

func (d *Driver) DeviceCount() int { return len(d.devices) }

func (d *Driver) DeviceInfo(index int) (nic.Info, error) {
	if index < 0 || index >= len(d.devices) {
		return nic.Info{}, fmt.Errorf("afpacket: device %d out of range", index)
	}
	attrs := d.devices[index].link.Attrs()
	var mac [6]byte
	copy(mac[:], attrs.HardwareAddr)
	return nic.Info{Index: index, Name: attrs.Name, MAC: mac}, nil
}

func (d *Driver) Configure(index int, rxQueues, txQueues int) error {
	if index < 0 || index >= len(d.devices) {
		return fmt.Errorf("afpacket: device %d out of range", index)
	}
	// AF_PACKET exposes a single queue per socket; rxQueues/txQueues are
	// accepted for interface symmetry with the spec's configure(port,
	// rx_q, tx_q, conf) signature but only one of each is ever opened.
	return nil
}

func (d *Driver) TxQueueSetup(index, queue int, cfg nic.QueueConfig) error { return nil }
func (d *Driver) RxQueueSetup(index, queue int, cfg nic.QueueConfig) error { return nil }

func (d *Driver) Start(index int) error {
	if index < 0 || index >= len(d.devices) {
		return fmt.Errorf("afpacket: device %d out of range", index)
	}
	dev := d.devices[index]
	ifi, err := net.InterfaceByIndex(dev.link.Attrs().Index)
	if err != nil {
		return fmt.Errorf("afpacket: %s: %w", dev.link.Attrs().Name, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, allEtherTypes, nil)
	if err != nil {
		return fmt.Errorf("afpacket: open %s: %w", dev.link.Attrs().Name, err)
	}
	dev.conn = conn
	return nil
}

// allEtherTypes mirrors ETH_P_ALL: the socket sees every frame regardless
// of ethertype, which is what PromiscuousEnable plus a raw socket gives us.
const allEtherTypes = 0x0003

// PromiscuousEnable is a no-op: promiscuous mode is implied by
// SOCK_RAW/ETH_P_ALL on Linux, unlike rte_eth_promiscuous_enable which
// needs an explicit NIC register write.
func (d *Driver) PromiscuousEnable(index int) error {
	if index < 0 || index >= len(d.devices) {
		return fmt.Errorf("afpacket: device %d out of range", index)
	}
	return nil
}

func (d *Driver) Stop(index int) error {
	if index < 0 || index >= len(d.devices) {
		return nil
	}
	dev := d.devices[index]
	if dev.conn != nil {
		err := dev.conn.Close()
		dev.conn = nil
		return err
	}
	return nil
}

func (d *Driver) TxBurst(index, queue int, pkts [][]byte) (int, error) {
	dev, err := d.device(index)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, p := range pkts {
		// The frame's own first 6 bytes are its Ethernet destination; reuse
		// them as the sockaddr_ll destination AF_PACKET's sendto() needs.
		dst := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
		if len(p) >= 6 {
			dst = net.HardwareAddr(p[0:6])
		}
		n, err := dev.conn.WriteTo(p, &packet.Addr{HardwareAddr: dst})
		if err != nil {
			return sent, fmt.Errorf("afpacket: write: %w", err)
		}
		dev.outPackets.Add(1)
		dev.outBytes.Add(uint64(n))
		sent++
	}
	return sent, nil
}

func (d *Driver) RxBurst(index, queue int, pkts [][]byte) (int, []int, error) {
	dev, err := d.device(index)
	if err != nil {
		return 0, nil, err
	}
	dev.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	lengths := make([]int, 0, len(pkts))
	n := 0
	for i := range pkts {
		l, _, err := dev.conn.ReadFrom(pkts[i])
		if err != nil {
			break
		}
		dev.inPackets.Add(1)
		dev.inBytes.Add(uint64(l))
		lengths = append(lengths, l)
		n++
	}
	return n, lengths, nil
}

func (d *Driver) StatsGet(index int) (nic.Stats, error) {
	dev, err := d.device(index)
	if err != nil {
		return nic.Stats{}, err
	}
	return nic.Stats{
		InPackets:  dev.inPackets.Load(),
		InBytes:    dev.inBytes.Load(),
		OutPackets: dev.outPackets.Load(),
		OutBytes:   dev.outBytes.Load(),
		InErrors:   dev.inErrors.Load(),
		InDrops:    dev.inDrops.Load(),
	}, nil
}

func (d *Driver) LinkGetNowait(index int) (nic.LinkState, error) {
	dev, err := d.device(index)
	if err != nil {
		return nic.LinkDown, err
	}
	link, err := netlink.LinkByIndex(dev.link.Attrs().Index)
	if err != nil {
		return nic.LinkDown, fmt.Errorf("afpacket: link state: %w", err)
	}
	if link.Attrs().OperState == netlink.OperUp {
		return nic.LinkUp, nil
	}
	return nic.LinkDown, nil
}

func (d *Driver) device(index int) (*device, error) {
	if index < 0 || index >= len(d.devices) {
		return nil, fmt.Errorf("afpacket: device %d out of range", index)
	}
	dev := d.devices[index]
	if dev.conn == nil {
		return nil, fmt.Errorf("afpacket: device %d not started", index)
	}
	return dev, nil
}
