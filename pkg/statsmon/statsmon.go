// Package statsmon periodically samples every port's cumulative counters
// and turns them into per-second rates, grounded on
// original_source/server/dpdkport.cpp's StatsMonitor::run(). The refresh
// sleep lives here, once per sampling round across all ports — not inside
// any per-port polling loop (see portmgr's RX poller, which must never
// sleep).
package statsmon

import (
	"sync"
	"time"

	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/port"
)

// maxValue64 is the wraparound point a cumulative uint64 counter resets
// from, matching the original's kMaxValue64.
const maxValue64 = ^uint64(0)

// DefaultRefresh is the sampling period, matching kRefreshFreq_ = 1s.
const DefaultRefresh = time.Second

// Rates is the derived per-second snapshot for one port.
type Rates struct {
	RxPps, RxBps uint64
	TxPps, TxBps uint64
	RxErrors     uint64
	RxDrops      uint64
	Link         nic.LinkState
}

// delta returns cur-prev with uint64 wraparound, matching spec §8's worked
// example (prev=2^64-10, cur=5 => delta=15). Go's unsigned subtraction
// already wraps modulo 2^64, so the branchless form is correct on its own;
// maxValue64 stays as the wraparound point kMaxValue64 names in the
// original, not used in this formula directly.
func delta(cur, prev uint64) uint64 {
	return cur - prev
}

// Monitor samples a fixed set of ports on a timer and keeps the latest
// Rates for each, readable without blocking the sampling goroutine.
type Monitor struct {
	ports   []*port.Port
	refresh time.Duration

	mu      sync.RWMutex
	rates   map[int]Rates
	prevCnt map[int]nic.Stats

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Monitor over ports, sampling every refresh (DefaultRefresh
// if zero).
func New(ports []*port.Port, refresh time.Duration) *Monitor {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Monitor{
		ports:   ports,
		refresh: refresh,
		rates:   make(map[int]Rates, len(ports)),
		prevCnt: make(map[int]nic.Stats, len(ports)),
		stop:    make(chan struct{}),
	}
}

// Start launches the sampling goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sampleOnce()
			}
		}
	}()
}

// Stop halts the sampling goroutine and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Monitor) sampleOnce() {
	secs := uint64(m.refresh / time.Second)
	if secs == 0 {
		secs = 1
	}
	for _, p := range m.ports {
		cur, err := p.Stats()
		if err != nil {
			continue
		}
		link, _ := p.LinkState() // non-blocking; errors leave Link at its zero value

		m.mu.Lock()
		prev := m.prevCnt[p.ID]
		m.rates[p.ID] = Rates{
			RxPps:    delta(cur.InPackets, prev.InPackets) / secs,
			RxBps:    delta(cur.InBytes, prev.InBytes) / secs,
			TxPps:    delta(cur.OutPackets, prev.OutPackets) / secs,
			TxBps:    delta(cur.OutBytes, prev.OutBytes) / secs,
			RxErrors: cur.InErrors,
			RxDrops:  cur.InDrops,
			Link:     link,
		}
		m.prevCnt[p.ID] = cur
		m.mu.Unlock()
	}
}

// SampleNow runs one sampling round synchronously, for tests and for a
// control-plane "give me fresh stats right now" request.
func (m *Monitor) SampleNow() { m.sampleOnce() }

// Rates returns the most recent sample for a port, or the zero value if
// none has been taken yet.
func (m *Monitor) Rates(portID int) Rates {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rates[portID]
}
