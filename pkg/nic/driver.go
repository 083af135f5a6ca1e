// Package nic defines the poll-mode NIC driver interface consumed by the
// port and transmit/receive engines (spec §6). An implementation may back
// it with a real kernel-bypass-free driver (nic/afpacket) or a software
// test double (nic/loop) — the rest of the core is written against this
// interface only and never assumes which.
package nic

import (
	"errors"
	"time"
)

// ErrDeviceRange is returned by a Driver implementation when asked to
// operate on a device index it didn't enumerate.
var ErrDeviceRange = errors.New("nic: device index out of range")

// LinkState mirrors the original's OstProto::LinkState enum.
type LinkState int

const (
	LinkDown LinkState = iota
	LinkUp
)

// Stats is the raw cumulative counter snapshot a driver reports; package
// statsmon turns this into wrap-safe rates.
type Stats struct {
	InPackets  uint64
	InBytes    uint64
	OutPackets uint64
	OutBytes   uint64
	InErrors   uint64
	InDrops    uint64 // no-mbuf drops, rx_nombuf in the DPDK original
}

// Info describes one device the driver has enumerated.
type Info struct {
	Index int
	Name  string
	MAC   [6]byte
}

// QueueConfig configures one RX or TX queue. Descriptors mirrors the
// original's fixed 32-descriptor ring size; drivers that don't need an
// explicit ring may ignore it.
type QueueConfig struct {
	Descriptors int
}

// Driver is the poll-mode NIC abstraction. DeviceCount/DeviceInfo are used
// by the port manager during enumeration; Configure/TxQueueSetup/
// RxQueueSetup/Start/PromiscuousEnable during per-port bring-up; TxBurst/
// RxBurst/StatsGet/LinkGetNowait on the hot path.
type Driver interface {
	DeviceCount() int
	DeviceInfo(index int) (Info, error)

	Configure(index int, rxQueues, txQueues int) error
	TxQueueSetup(index, queue int, cfg QueueConfig) error
	RxQueueSetup(index, queue int, cfg QueueConfig) error
	Start(index int) error
	PromiscuousEnable(index int) error
	Stop(index int) error

	// TxBurst posts up to len(pkts) frames to index's TX queue, returning
	// how many were accepted.
	TxBurst(index, queue int, pkts [][]byte) (int, error)
	// RxBurst fills pkts (pre-sized buffers) with up to len(pkts) received
	// frames, returning how many were filled and each one's length.
	RxBurst(index, queue int, pkts [][]byte) (n int, lengths []int, err error)

	StatsGet(index int) (Stats, error)
	// LinkGetNowait is the non-blocking link-state query spec §4.6 requires.
	LinkGetNowait(index int) (LinkState, error)
}

// BusyWait blocks the calling goroutine for d, matching the transmit loop's
// requirement to busy-wait rather than sleep for inter-packet delays (spec
// §5 "transmit threads busy-wait for inter-packet delays (no OS sleep)").
func BusyWait(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
