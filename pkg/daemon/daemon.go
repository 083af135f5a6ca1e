// Package daemon implements the traffic-generation engine's process
// lifecycle: pool and port bring-up, stats sampling, the control-plane
// HTTP server, and signal-driven shutdown.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pktforge/tgen/pkg/engineconfig"
	"github.com/pktforge/tgen/pkg/logging"
	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/nic/afpacket"
	"github.com/pktforge/tgen/pkg/nic/loop"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/port"
	"github.com/pktforge/tgen/pkg/portmgr"
	"github.com/pktforge/tgen/pkg/statsmon"
)

// Daemon is the main traffic-generation engine process.
type Daemon struct {
	cfg    engineconfig.Config
	events *logging.EventBuffer
	pool   *pool.Pool
	mgr    *portmgr.Manager
	mon    *statsmon.Monitor
	server ControlServer
}

// ControlServer is the subset of pkg/controlapi.Server the daemon depends
// on, kept narrow so daemon doesn't need to import controlapi's handler
// plumbing directly.
type ControlServer interface {
	Run(ctx context.Context) error
}

// NewServerFunc builds the control-plane server for a Manager/Monitor pair.
// cmd/tgend supplies controlapi.NewServer here; tests can supply a stub.
type NewServerFunc func(addr string, mgr *portmgr.Manager, mon *statsmon.Monitor) ControlServer

// New creates a new Daemon from cfg. newServer builds the control-plane
// HTTP server; pass controlapi.NewServer-backed wiring from cmd/tgend.
func New(cfg engineconfig.Config, newServer NewServerFunc) (*Daemon, error) {
	d := &Daemon{
		cfg:    cfg,
		events: logging.NewEventBuffer(1000),
	}

	driver, err := openDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("open driver: %w", err)
	}

	d.pool = pool.New(cfg.PoolSize, cfg.BufferSize, cfg.Headroom)

	mgr, err := portmgr.New(driver, d.pool, cfg.CoreCount)
	if err != nil {
		return nil, fmt.Errorf("bring up ports: %w", err)
	}
	d.mgr = mgr

	for _, p := range mgr.Ports() {
		d.events.Add(logging.EventRecord{
			Time:     time.Now(),
			Type:     "PORT_STARTED",
			PortID:   p.ID,
			PortName: p.Name,
		})
	}

	refresh := time.Duration(cfg.StatsRefreshSeconds) * time.Second
	if refresh <= 0 {
		refresh = statsmon.DefaultRefresh
	}
	d.mon = statsmon.New(mgr.Ports(), refresh)

	if newServer != nil {
		d.server = newServer(cfg.ControlAddr, mgr, d.mon)
	}

	return d, nil
}

func openDriver(cfg engineconfig.Config) (nic.Driver, error) {
	if cfg.NoNIC {
		return loop.New(cfg.Interfaces), nil
	}
	return afpacket.New(cfg.Interfaces)
}

// Events returns the daemon's shared port-lifecycle event buffer.
func (d *Daemon) Events() *logging.EventBuffer { return d.events }

// Manager returns the daemon's port manager.
func (d *Daemon) Manager() *portmgr.Manager { return d.mgr }

// Monitor returns the daemon's stats monitor.
func (d *Daemon) Monitor() *statsmon.Monitor { return d.mon }

// Run starts RX polling, stats sampling, and (if configured) the
// control-plane server, then blocks until ctx is cancelled, tearing
// everything down in reverse order of startup.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting traffic-generation engine",
		"control_addr", d.cfg.ControlAddr,
		"ports", len(d.mgr.Ports()),
		"pid", os.Getpid())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	d.mgr.StartRxPolling()
	d.mon.Start()

	var runErr error
	if d.server != nil {
		runErr = d.server.Run(ctx)
	} else {
		<-ctx.Done()
		slog.Info("signal received, shutting down")
	}

	d.mon.Stop()
	d.mgr.StopRxPolling()

	for _, p := range d.mgr.Ports() {
		if p.State() == port.Transmitting {
			p.StopTransmit()
		}
	}

	if err := d.mgr.Teardown(); err != nil {
		slog.Warn("teardown", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}
