// Package engineconfig holds the flat, flag-driven startup configuration
// for the traffic-generation engine, in the style of the teacher's
// daemon.Options/cmd/bpfrxd flag set.
package engineconfig

// Config is the engine's startup configuration.
type Config struct {
	// ControlAddr is the control-plane HTTP listen address.
	ControlAddr string
	// Interfaces is the allow-list of interface names to enumerate; empty
	// means every non-loopback interface.
	Interfaces []string
	// NoNIC runs the engine against the software loopback driver instead
	// of AF_PACKET, for local testing without a privileged socket.
	NoNIC bool
	// CoreCount bounds how many OS threads are available for transmit-core
	// pinning; core 0 is never assigned to a port, and the RX polling
	// goroutine is not pinned to any core.
	CoreCount int
	// PoolSize is the packet buffer pool's fixed capacity.
	PoolSize int
	// BufferSize is each pool buffer's fixed capacity in bytes.
	BufferSize int
	// Headroom is the byte headroom reserved at the front of each buffer.
	Headroom int
	// StatsRefreshSeconds is the stats monitor's sampling period in seconds.
	StatsRefreshSeconds int
	// Debug enables debug-level structured logging.
	Debug bool
}

// Default returns a Config with the same defaults cmd/tgend's flags fall
// back to when unset.
func Default() Config {
	return Config{
		ControlAddr:         "127.0.0.1:8080",
		CoreCount:           4,
		PoolSize:            16 * 1024,
		BufferSize:          2048,
		Headroom:            128,
		StatsRefreshSeconds: 1,
	}
}
