// Package port implements the per-interface state machine (spec §4),
// grounded on original_source/server/dpdkport.h's DpdkPort and the
// AbstractPort it extends: one Port per enumerated NIC device, owning a
// packet list, a pinned transmit goroutine, and a stats/link-state record.
package port

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/pktforge/tgen/pkg/chain"
	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/packetlist"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/tgerr"
)

// State is a Port's position in the Created→Configured→Started→
// {Transmitting⇄Started}→Stopped→Destroyed state machine.
type State int

const (
	Created State = iota
	Configured
	Started
	Transmitting
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Configured:
		return "Configured"
	case Started:
		return "Started"
	case Transmitting:
		return "Transmitting"
	case Stopped:
		return "Stopped"
	case Destroyed:
		return "Destroyed"
	default:
		return "unknown"
	}
}

// Port is one NIC device under traffic-generator control.
type Port struct {
	mu sync.Mutex

	ID        int
	Name      string
	TxCoreID  int // OS-thread-pinned core for the transmit goroutine, -1 if unassigned
	driver    nic.Driver
	state     State
	usable    bool
	list      *packetlist.List
	chain     *chain.Chain
	txErr     error
	txWG      sync.WaitGroup
}

// New constructs a Port wrapping device index on driver, backed by p for
// packet buffers. The port starts in Created state.
func New(id int, name string, driver nic.Driver, p *pool.Pool, txCoreID int) *Port {
	return &Port{
		ID:       id,
		Name:     name,
		TxCoreID: txCoreID,
		driver:   driver,
		state:    Created,
		usable:   true,
		list:     packetlist.New(p),
		chain:    chain.New(nil),
	}
}

// State returns the port's current lifecycle state.
func (p *Port) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Usable reports whether the port is available for streams (false if the
// driver rejected Configure/Start, mirroring AbstractPort::isUsable).
func (p *Port) Usable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usable
}

// Configure moves the port from Created to Configured, setting up one RX
// and one TX queue on the underlying driver.
func (p *Port) Configure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Created {
		return tgerr.New(tgerr.NicConfigure, fmt.Sprintf("port %d: configure from state %s", p.ID, p.state))
	}
	if err := p.driver.Configure(p.ID, 1, 1); err != nil {
		p.usable = false
		return tgerr.Wrap(tgerr.NicConfigure, fmt.Sprintf("port %d", p.ID), err)
	}
	if err := p.driver.RxQueueSetup(p.ID, 0, nic.QueueConfig{Descriptors: 32}); err != nil {
		p.usable = false
		return tgerr.Wrap(tgerr.QueueSetup, fmt.Sprintf("port %d rx", p.ID), err)
	}
	if err := p.driver.TxQueueSetup(p.ID, 0, nic.QueueConfig{Descriptors: 32}); err != nil {
		p.usable = false
		return tgerr.Wrap(tgerr.QueueSetup, fmt.Sprintf("port %d tx", p.ID), err)
	}
	p.state = Configured
	return nil
}

// Start moves the port from Configured to Started: brings the device link
// up and enables promiscuous mode so captured/received frames aren't
// filtered by destination MAC.
func (p *Port) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Configured {
		return tgerr.New(tgerr.DeviceStart, fmt.Sprintf("port %d: start from state %s", p.ID, p.state))
	}
	if err := p.driver.Start(p.ID); err != nil {
		p.usable = false
		return tgerr.Wrap(tgerr.DeviceStart, fmt.Sprintf("port %d", p.ID), err)
	}
	if err := p.driver.PromiscuousEnable(p.ID); err != nil {
		p.usable = false
		return tgerr.Wrap(tgerr.DeviceStart, fmt.Sprintf("port %d promisc", p.ID), err)
	}
	p.state = Started
	return nil
}

// List returns the port's packet list for stream construction.
func (p *Port) List() *packetlist.List { return p.list }

// Driver returns the nic.Driver backing this port, used by portmgr's
// shared RX polling goroutine.
func (p *Port) Driver() nic.Driver { return p.driver }

// Chain returns the port's protocol layer chain, created empty by New. The
// control API renders each stream with a chain of its own, not this one.
func (p *Port) Chain() *chain.Chain { return p.chain }

// StartTransmit launches the transmit loop on a core-pinned goroutine and
// returns immediately; it fails if the port isn't Started, is already
// transmitting, or has no transmit core assigned. It always runs the
// set/loop-aware Transmit, never TransmitTopSpeed (see the comment below).
func (p *Port) StartTransmit() error {
	p.mu.Lock()
	if p.state != Started {
		p.mu.Unlock()
		return tgerr.New(tgerr.TransmitterBusy, fmt.Sprintf("port %d: start transmit from state %s", p.ID, p.state))
	}
	if p.TxCoreID < 0 {
		p.mu.Unlock()
		return tgerr.New(tgerr.NoCoreAvailable, fmt.Sprintf("port %d: no transmit core assigned", p.ID))
	}
	p.state = Transmitting
	p.txErr = nil
	p.mu.Unlock()

	p.txWG.Add(1)
	go func() {
		defer p.txWG.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pinToCore(p.TxCoreID); err != nil {
			p.mu.Lock()
			p.txErr = tgerr.Wrap(tgerr.NoCoreAvailable, fmt.Sprintf("port %d", p.ID), err)
			p.state = Started
			p.mu.Unlock()
			return
		}

		// startTransmit always launches the set/loop-aware Transmit, even
		// when the list's timing makes it eligible for TransmitTopSpeed
		// (packetlist.List.TopSpeed/TransmitTopSpeed exist as a lower-level
		// continuous-blast primitive a caller can invoke directly, the way
		// the original tracks a topSpeedTransmit flag on its packet list
		// without ever dispatching to its own topSpeedTransmit function).
		err := p.list.Transmit(p.driver, p.ID)

		p.mu.Lock()
		p.txErr = err
		if p.state == Transmitting {
			p.state = Started
		}
		p.mu.Unlock()
	}()
	return nil
}

// StopTransmit signals the transmit loop to exit and waits for it to stop.
func (p *Port) StopTransmit() {
	p.list.Stop()
	p.txWG.Wait()
}

// IsTransmitOn reports whether a transmit loop is currently active.
func (p *Port) IsTransmitOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Transmitting
}

// TransmitError returns the error (if any) the most recently finished
// transmit loop exited with.
func (p *Port) TransmitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txErr
}

// Stop moves the port out of Started/Transmitting into Stopped, tearing
// down the driver's device state. A running transmit is stopped first.
func (p *Port) Stop() error {
	if p.IsTransmitOn() {
		p.StopTransmit()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.driver.Stop(p.ID); err != nil {
		return tgerr.Wrap(tgerr.DeviceStart, fmt.Sprintf("port %d stop", p.ID), err)
	}
	p.state = Stopped
	return nil
}

// Destroy releases the port's packet list buffers. The port must not be
// Transmitting.
func (p *Port) Destroy() error {
	if err := p.list.Clear(); err != nil {
		return err
	}
	p.mu.Lock()
	p.state = Destroyed
	p.mu.Unlock()
	return nil
}

// LinkState queries the driver's non-blocking link-state read.
func (p *Port) LinkState() (nic.LinkState, error) {
	return p.driver.LinkGetNowait(p.ID)
}

// Stats queries the driver's cumulative counters.
func (p *Port) Stats() (nic.Stats, error) {
	return p.driver.StatsGet(p.ID)
}

// pinToCore binds the calling OS thread to a single CPU, mirroring the
// original's pthread_setaffinity_np call made from each DPDK lcore worker.
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
