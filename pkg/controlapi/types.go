// Package controlapi implements the JSON/HTTP control-plane surface (spec
// §6), adapted from the teacher's pkg/api: the same Response envelope,
// writeOK/writeError helpers, and method-pattern http.ServeMux routing,
// repurposed for stream CRUD and transmit/capture control instead of
// firewall configuration.
package controlapi

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StreamRequest describes a stream to add to a port: a named,
// ordered sequence of protocol layer kinds with per-layer field overrides,
// plus the packet-set timing LoopNextSet/SetLoopMode ultimately consumes.
type StreamRequest struct {
	Name            string                   `json:"name"`
	Layers          []LayerSpec              `json:"layers"`
	Repeats         int64                    `json:"repeats"`
	RepeatDelayUsec uint64                   `json:"repeat_delay_usec"`
	Loop            bool                     `json:"loop"`
	LoopDelaySec    uint64                   `json:"loop_delay_sec"`
	LoopDelayNsec   uint64                   `json:"loop_delay_nsec"`
}

// LayerSpec names one protocol layer kind plus field overrides, keyed by
// field name; buildLayer parses the overrides into the arguments of the
// kind's layer constructor.
type LayerSpec struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// PortSummary is a port's identity and lifecycle state.
type PortSummary struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	Usable        bool   `json:"usable"`
	TxCoreID      int    `json:"tx_core_id"`
	IsTransmitOn  bool   `json:"is_transmit_on"`
}

// LinkStateResponse reports one port's link state.
type LinkStateResponse struct {
	PortID int    `json:"port_id"`
	State  string `json:"state"`
}

// StatsResponse reports one port's latest sampled rates and cumulative
// error/drop counters.
type StatsResponse struct {
	PortID   int    `json:"port_id"`
	RxPps    uint64 `json:"rx_pps"`
	RxBps    uint64 `json:"rx_bps"`
	TxPps    uint64 `json:"tx_pps"`
	TxBps    uint64 `json:"tx_bps"`
	RxErrors uint64 `json:"rx_errors"`
	RxDrops  uint64 `json:"rx_drops"`
	Link     string `json:"link"`
}
