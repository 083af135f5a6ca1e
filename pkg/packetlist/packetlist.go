// Package packetlist implements the packet list, packet-set descriptors,
// and the synchronous/top-speed transmit loops of spec §4.4, grounded on
// original_source/server/dpdkport.cpp's DpdkPacketList/syncTransmit/
// topSpeedTransmit.
package packetlist

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/tgerr"
)

// record is one packet list entry: a buffer handle plus its scheduled
// transmission timestamp.
type record struct {
	buf       *pool.Buffer
	sec, nsec int64
}

// Set is a packet-set descriptor: a contiguous sub-range of the list with
// its own loop count and per-loop delay.
type Set struct {
	StartOffset     int
	EndOffset       int // inclusive
	LoopCount       int64
	RepeatDelayUsec uint64
}

// List is the fully materialised sequence the transmit engine replays, plus
// its set descriptors and outer loop configuration.
type List struct {
	mu       sync.Mutex
	pool     *pool.Pool
	records  []record
	maxSize  int
	sets     []Set
	setLimit int // set-descriptor capacity from SetSize: activeStreamCount+1

	loop          bool
	loopDelaySec  uint64
	loopDelayNsec uint64
	topSpeed      bool

	running   atomic.Bool
	stopCh    chan struct{}
	capture   CaptureSink
	captureMu sync.Mutex
}

// New constructs an empty list backed by p for buffer allocation.
func New(p *pool.Pool) *List {
	return &List{pool: p, topSpeed: true}
}

// SetSize pre-sizes backing storage for n records. After the call, Size()
// is 0. It reserves room for activeStreamCount+1 set descriptors.
func (l *List) SetSize(n, activeStreamCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make([]record, 0, n)
	l.maxSize = n
	l.sets = make([]Set, 0, activeStreamCount+1)
	l.setLimit = activeStreamCount + 1
}

// Clear returns every held buffer to the pool, decrementing the extra
// reference the transmit loop took before each TX post, then resets the
// list. It requires the transmitter to be stopped first; calling it while
// the transmitter is running returns tgerr.TransmitterBusy rather than
// freeing buffers out from under an in-flight transmit (the Design Note
// "clear_list frees buffers regardless of running state" bug is not
// reproduced).
func (l *List) Clear() error {
	if l.running.Load() {
		return tgerr.New(tgerr.TransmitterBusy, "packetlist.Clear")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		l.pool.RefDown(r.buf) // undo the transmit-time RefUp
		l.pool.RefDown(r.buf) // release the list's own reference
	}
	l.records = nil
	l.maxSize = 0
	l.sets = nil
	l.setLimit = 0
	l.loop = false
	l.topSpeed = true
	return nil
}

// Append obtains a buffer, truncates length to available tailroom, copies
// bytes into it, and records it with the given timestamp. Any nonzero
// timestamp disables top-speed mode. Returns false on pool exhaustion.
func (l *List) Append(sec, nsec int64, data []byte) (ok bool, err error) {
	buf, aerr := l.pool.Alloc()
	if aerr != nil {
		return false, aerr
	}
	buf.SetBytes(data) // silently truncates to tailroom, per PacketTooLarge policy

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record{buf: buf, sec: sec, nsec: nsec})
	if sec != 0 || nsec != 0 {
		l.topSpeed = false
	}
	return true, nil
}

// Size returns the current number of records in the list.
func (l *List) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// LoopNextSet appends a set descriptor covering the next `size` records
// (from the current list size) with the given loop count and per-loop
// delay. A nonzero delay disables top-speed mode.
func (l *List) LoopNextSet(size int, repeats int64, delaySec, delayNsec int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := 0
	if len(l.sets) > 0 {
		start = l.sets[len(l.sets)-1].EndOffset + 1
	}
	set := Set{
		StartOffset:     start,
		EndOffset:       start + size - 1,
		LoopCount:       repeats,
		RepeatDelayUsec: uint64(delaySec)*1e6 + uint64(delayNsec)/1e3,
	}
	l.sets = append(l.sets, set)
	if set.RepeatDelayUsec > 0 {
		l.topSpeed = false
	}
}

// SetLoopMode configures the outer loop of the whole list.
func (l *List) SetLoopMode(loop bool, delaySec, delayNsec uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loop = loop
	l.loopDelaySec = delaySec
	l.loopDelayNsec = delayNsec
	if loop && (delaySec != 0 || delayNsec != 0) {
		l.topSpeed = false
	}
}

// TopSpeed reports whether no inter-packet, inter-set or inter-loop delays
// exist, the condition under which TransmitTopSpeed should be used instead
// of Transmit.
func (l *List) TopSpeed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.topSpeed
}

// IsRunning reports whether a transmit loop is currently active.
func (l *List) IsRunning() bool { return l.running.Load() }

// CaptureSink receives the bytes of every buffer the Transmit loop posts
// while armed, per spec §6 ADD "capture" stub. Received frames and
// TransmitTopSpeed's filler frames are not passed to it. The core's only job is
// arming/disarming it; it carries no pcap file format or GUI.
type CaptureSink interface {
	Capture(data []byte)
}

// ArmCapture installs sink as the active capture sink, or disarms capture
// entirely if sink is nil.
func (l *List) ArmCapture(sink CaptureSink) {
	l.captureMu.Lock()
	l.capture = sink
	l.captureMu.Unlock()
}

func (l *List) capturePacket(data []byte) {
	l.captureMu.Lock()
	sink := l.capture
	l.captureMu.Unlock()
	if sink != nil {
		sink.Capture(data)
	}
}

// Transmit runs the synchronous transmit loop (spec §4.4) until Stop is
// called or the list's outer loop exhausts without a loop flag set. It is
// meant to run on a core-pinned goroutine; it busy-waits for inter-packet
// delays rather than sleeping, per spec §5.
func (l *List) Transmit(driver nic.Driver, portIndex int) error {
	l.mu.Lock()
	records := l.records
	sets := l.sets
	loop := l.loop
	loopDelay := time.Duration(l.loopDelaySec)*time.Second + time.Duration(l.loopDelayNsec)*time.Nanosecond
	l.mu.Unlock()

	if len(records) == 0 || len(sets) == 0 {
		return nil
	}

	l.running.Store(true)
	l.stopCh = make(chan struct{})
	defer l.running.Store(false)

	i := 0
	setIdx := 0
	n := sets[setIdx].LoopCount
	var lastSec, lastNsec int64

	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}

		r := records[i]
		usec := (r.sec-lastSec)*1_000_000 + (r.nsec-lastNsec)/1_000
		if usec > 0 {
			nic.BusyWait(time.Duration(usec) * time.Microsecond)
		}

		l.pool.RefUp(r.buf)
		driver.TxBurst(portIndex, 0, [][]byte{r.buf.Bytes()})
		l.capturePacket(r.buf.Bytes())

		if i == sets[setIdx].EndOffset {
			if sets[setIdx].RepeatDelayUsec > 0 {
				nic.BusyWait(time.Duration(sets[setIdx].RepeatDelayUsec) * time.Microsecond)
			}
			n--
			if n > 0 {
				i = sets[setIdx].StartOffset
				lastSec, lastNsec = records[i].sec, records[i].nsec
				continue
			}
			setIdx++
			if setIdx >= len(sets) {
				setIdx = 0
			}
			n = sets[setIdx].LoopCount
		}

		lastSec, lastNsec = r.sec, r.nsec
		i++
		if i >= len(records) {
			i = 0
			setIdx = 0
			n = sets[0].LoopCount
			if !loop {
				return nil
			}
			nic.BusyWait(loopDelay)
		}
	}
}

// TransmitTopSpeed runs the degenerate top-speed transmit loop used when no
// timing structure is present: it allocates a buffer, extends it by a
// fixed small payload, and posts it to TX as fast as possible.
func (l *List) TransmitTopSpeed(driver nic.Driver, portIndex int) error {
	l.running.Store(true)
	l.stopCh = make(chan struct{})
	defer l.running.Store(false)

	const fillerSize = 64
	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}
		buf, err := l.pool.Alloc()
		if err != nil {
			continue // PoolExhausted: retry, matching the original's silent mbuf-alloc-failure skip
		}
		buf.SetBytes(make([]byte, fillerSize))
		driver.TxBurst(portIndex, 0, [][]byte{buf.Bytes()})
		l.pool.RefDown(buf)
	}
}

// Stop signals an in-progress Transmit/TransmitTopSpeed to exit and blocks
// until it has. Calling Stop when no transmit is running is a no-op.
func (l *List) Stop() {
	if !l.running.Load() {
		return
	}
	close(l.stopCh)
	for l.running.Load() {
		time.Sleep(time.Microsecond * 100)
	}
}
