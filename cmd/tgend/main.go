// tgend is the traffic-generation engine daemon.
//
// It brings up the configured network interfaces as transmit/receive
// ports, exposes a JSON/HTTP control plane for stream and transmit
// control, and serves Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pktforge/tgen/pkg/controlapi"
	"github.com/pktforge/tgen/pkg/daemon"
	"github.com/pktforge/tgen/pkg/engineconfig"
	"github.com/pktforge/tgen/pkg/portmgr"
	"github.com/pktforge/tgen/pkg/statsmon"
)

func main() {
	def := engineconfig.Default()

	controlAddr := flag.String("control-addr", def.ControlAddr, "control-plane HTTP listen address")
	interfaces := flag.String("interfaces", "", "comma-separated interface names to enumerate (empty: all non-loopback)")
	noNIC := flag.Bool("no-nic", false, "run against the software loopback driver instead of AF_PACKET")
	coreCount := flag.Int("cores", def.CoreCount, "number of CPU cores available for transmit pinning")
	poolSize := flag.Int("pool-size", def.PoolSize, "packet buffer pool size")
	bufferSize := flag.Int("buffer-size", def.BufferSize, "packet buffer size in bytes")
	headroom := flag.Int("headroom", def.Headroom, "header headroom reserved per buffer in bytes")
	statsRefresh := flag.Int("stats-refresh-seconds", def.StatsRefreshSeconds, "stats sampling period in seconds")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := engineconfig.Config{
		ControlAddr:         *controlAddr,
		NoNIC:               *noNIC,
		CoreCount:           *coreCount,
		PoolSize:            *poolSize,
		BufferSize:          *bufferSize,
		Headroom:            *headroom,
		StatsRefreshSeconds: *statsRefresh,
		Debug:               *debug,
	}
	if *interfaces != "" {
		cfg.Interfaces = strings.Split(*interfaces, ",")
	}

	newServer := func(addr string, mgr *portmgr.Manager, mon *statsmon.Monitor) daemon.ControlServer {
		return controlapi.NewServer(controlapi.Config{Addr: addr, Mgr: mgr, Mon: mon})
	}

	d, err := daemon.New(cfg, newServer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tgend: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "tgend: %v\n", err)
		os.Exit(1)
	}
}
