// Package loop implements nic.Driver as a software loopback test double:
// every device's TX queue feeds its own RX queue through a buffered
// channel. It has no hardware dependency, grounded on the teacher's
// dpdk_stub.go "//go:build !dpdk" idiom — same interface, no real driver
// underneath — and is used by the test suite and by tgend's -no-nic mode.
package loop

import (
	"sync/atomic"

	"github.com/pktforge/tgen/pkg/nic"
)

type device struct {
	name string
	rx   chan []byte

	inPackets, inBytes   atomic.Uint64
	outPackets, outBytes atomic.Uint64
	link                 atomic.Int32 // nic.LinkState
	started              atomic.Bool
}

// Driver is a fixed set of named loopback devices, each wired to itself.
type Driver struct {
	devices []*device
}

// New builds a Driver with one loopback device per name.
func New(names []string) *Driver {
	d := &Driver{devices: make([]*device, len(names))}
	for i, name := range names {
		dev := &device{name: name, rx: make(chan []byte, 1024)}
		dev.link.Store(int32(nic.LinkUp))
		d.devices[i] = dev
	}
	return d
}

func (d *Driver) DeviceCount() int { return len(d.devices) }

func (d *Driver) DeviceInfo(index int) (nic.Info, error) {
	dev, err := d.device(index)
	if err != nil {
		return nic.Info{}, err
	}
	return nic.Info{Index: index, Name: dev.name, MAC: [6]byte{0x02, 0, 0, 0, 0, byte(index)}}, nil
}

func (d *Driver) Configure(index int, rxQueues, txQueues int) error { _, err := d.device(index); return err }
func (d *Driver) TxQueueSetup(index, queue int, cfg nic.QueueConfig) error {
	_, err := d.device(index)
	return err
}
func (d *Driver) RxQueueSetup(index, queue int, cfg nic.QueueConfig) error {
	_, err := d.device(index)
	return err
}

func (d *Driver) Start(index int) error {
	dev, err := d.device(index)
	if err != nil {
		return err
	}
	dev.started.Store(true)
	return nil
}

func (d *Driver) PromiscuousEnable(index int) error { _, err := d.device(index); return err }

func (d *Driver) Stop(index int) error {
	dev, err := d.device(index)
	if err != nil {
		return err
	}
	dev.started.Store(false)
	return nil
}

func (d *Driver) TxBurst(index, queue int, pkts [][]byte) (int, error) {
	dev, err := d.device(index)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, p := range pkts {
		cp := make([]byte, len(p))
		copy(cp, p)
		select {
		case dev.rx <- cp:
			dev.outPackets.Add(1)
			dev.outBytes.Add(uint64(len(p)))
			sent++
		default:
			// rx ring full: drop, matching a real NIC under backpressure
		}
	}
	return sent, nil
}

func (d *Driver) RxBurst(index, queue int, pkts [][]byte) (int, []int, error) {
	dev, err := d.device(index)
	if err != nil {
		return 0, nil, err
	}
	lengths := make([]int, 0, len(pkts))
	n := 0
	for i := range pkts {
		select {
		case p := <-dev.rx:
			copy(pkts[i], p)
			l := len(p)
			if l > len(pkts[i]) {
				l = len(pkts[i])
			}
			dev.inPackets.Add(1)
			dev.inBytes.Add(uint64(l))
			lengths = append(lengths, l)
			n++
		default:
			return n, lengths, nil
		}
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
	}, nil
}

func (d *Driver) LinkGetNowait(index int) (nic.LinkState, error) {
	dev, err := d.device(index)
	if err != nil {
		return nic.LinkDown, err
	}
	return nic.LinkState(dev.link.Load()), nil
}

// SetLinkState lets tests drive link up/down transitions.
func (d *Driver) SetLinkState(index int, state nic.LinkState) error {
	dev, err := d.device(index)
	if err != nil {
		return err
	}
	dev.link.Store(int32(state))
	return nil
}

func (d *Driver) device(index int) (*device, error) {
	if index < 0 || index >= len(d.devices) {
		return nil, nic.ErrDeviceRange
	}
	return d.devices[index], nil
}
