package statsexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pktforge/tgen/pkg/nic/loop"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/port"
	"github.com/pktforge/tgen/pkg/statsmon"
)

func TestCollectorEmitsOneSeriesPerPort(t *testing.T) {
	drv := loop.New([]string{"loop0", "loop1"})
	p := pool.New(64, 256, 16)
	ports := []*port.Port{
		port.New(0, "loop0", drv, p, -1),
		port.New(1, "loop1", drv, p, -1),
	}
	for _, prt := range ports {
		prt.Configure()
		prt.Start()
	}

	mon := statsmon.New(ports, 0)
	drv.TxBurst(0, 0, [][]byte{{1, 2, 3}})
	mon.SampleNow()

	c := New(mon, ports)

	descCh := make(chan *prometheus.Desc, 16)
	c.Describe(descCh)
	close(descCh)
	descCount := 0
	for range descCh {
		descCount++
	}
	if descCount != 7 {
		t.Fatalf("Describe emitted %d descs, want 7", descCount)
	}

	metricCh := make(chan prometheus.Metric, 32)
	c.Collect(metricCh)
	close(metricCh)
	metricCount := 0
	for m := range metricCh {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		metricCount++
	}
	if metricCount != 7*len(ports) {
		t.Fatalf("Collect emitted %d metrics, want %d", metricCount, 7*len(ports))
	}
}
