// Package statsexport adapts statsmon's per-port rates into a
// prometheus.Collector, in the style of the teacher's pkg/api/metrics.go
// bpfrxCollector: Describe lists every metric's Desc once, Collect reads
// live state on each scrape rather than maintaining its own counters.
package statsexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/port"
	"github.com/pktforge/tgen/pkg/statsmon"
)

// Collector exposes every port's rates and link state as Prometheus
// metrics, reading through to a statsmon.Monitor on each scrape.
type Collector struct {
	mon   *statsmon.Monitor
	ports []*port.Port

	rxPpsDesc, rxBpsDesc *prometheus.Desc
	txPpsDesc, txBpsDesc *prometheus.Desc
	rxErrorsDesc         *prometheus.Desc
	rxDropsDesc          *prometheus.Desc
	linkUpDesc           *prometheus.Desc
}

// New builds a Collector over mon's sampled ports.
func New(mon *statsmon.Monitor, ports []*port.Port) *Collector {
	return &Collector{
		mon:   mon,
		ports: ports,
		rxPpsDesc: prometheus.NewDesc(
			"tgen_port_rx_packets_per_second", "Received packets per second.",
			[]string{"port"}, nil,
		),
		rxBpsDesc: prometheus.NewDesc(
			"tgen_port_rx_bytes_per_second", "Received bytes per second.",
			[]string{"port"}, nil,
		),
		txPpsDesc: prometheus.NewDesc(
			"tgen_port_tx_packets_per_second", "Transmitted packets per second.",
			[]string{"port"}, nil,
		),
		txBpsDesc: prometheus.NewDesc(
			"tgen_port_tx_bytes_per_second", "Transmitted bytes per second.",
			[]string{"port"}, nil,
		),
		rxErrorsDesc: prometheus.NewDesc(
			"tgen_port_rx_errors_total", "Cumulative receive errors.",
			[]string{"port"}, nil,
		),
		rxDropsDesc: prometheus.NewDesc(
			"tgen_port_rx_drops_total", "Cumulative no-buffer receive drops.",
			[]string{"port"}, nil,
		),
		linkUpDesc: prometheus.NewDesc(
			"tgen_port_link_up", "1 if the port's link is up, 0 otherwise.",
			[]string{"port"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rxPpsDesc
	ch <- c.rxBpsDesc
	ch <- c.txPpsDesc
	ch <- c.txBpsDesc
	ch <- c.rxErrorsDesc
	ch <- c.rxDropsDesc
	ch <- c.linkUpDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.ports {
		label := p.Name
		r := c.mon.Rates(p.ID)

		ch <- prometheus.MustNewConstMetric(c.rxPpsDesc, prometheus.GaugeValue, float64(r.RxPps), label)
		ch <- prometheus.MustNewConstMetric(c.rxBpsDesc, prometheus.GaugeValue, float64(r.RxBps), label)
		ch <- prometheus.MustNewConstMetric(c.txPpsDesc, prometheus.GaugeValue, float64(r.TxPps), label)
		ch <- prometheus.MustNewConstMetric(c.txBpsDesc, prometheus.GaugeValue, float64(r.TxBps), label)
		ch <- prometheus.MustNewConstMetric(c.rxErrorsDesc, prometheus.CounterValue, float64(r.RxErrors), label)
		ch <- prometheus.MustNewConstMetric(c.rxDropsDesc, prometheus.CounterValue, float64(r.RxDrops), label)

		up := 0.0
		if r.Link == nic.LinkUp {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.linkUpDesc, prometheus.GaugeValue, up, label)
	}
}
