package controlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pktforge/tgen/pkg/nic/loop"
	"github.com/pktforge/tgen/pkg/pool"
	"github.com/pktforge/tgen/pkg/portmgr"
	"github.com/pktforge/tgen/pkg/statsmon"
)

func newTestServer(t *testing.T) (*Server, *portmgr.Manager) {
	t.Helper()
	drv := loop.New([]string{"loop0"})
	p := pool.New(256, 256, 16)
	mgr, err := portmgr.New(drv, p, 4)
	if err != nil {
		t.Fatalf("portmgr.New: %v", err)
	}
	mon := statsmon.New(mgr.Ports(), time.Second)
	return NewServer(Config{Addr: "127.0.0.1:0", Mgr: mgr, Mon: mon}), mgr
}

func decodeResponse(t *testing.T, body *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(body.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body=%s", err, body.Body.String())
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestListPorts(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ports", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	resp := decodeResponse(t, rr)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestAddStreamAndTransmitRoundTrip(t *testing.T) {
	s, mgr := newTestServer(t)
	body := `{
		"name": "s1",
		"layers": [
			{"kind": "ethernet", "fields": {"dst": "ff:ff:ff:ff:ff:ff", "src": "02:00:00:00:00:01"}},
			{"kind": "ip4", "fields": {"src": "10.0.0.1", "dst": "10.0.0.2"}},
			{"kind": "udp", "fields": {"src_port": "1000", "dst_port": "2000"}},
			{"kind": "payload", "fields": {"length": "8", "pattern": "170"}}
		],
		"repeats": 1
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ports/0/streams", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	resp := decodeResponse(t, rr)
	if !resp.Success {
		t.Fatalf("addStream failed: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ports/0/transmit/start", nil)
	rr = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	resp = decodeResponse(t, rr)
	if !resp.Success {
		t.Fatalf("startTransmit failed: %+v", resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mgr.Port(0).IsTransmitOn() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if mgr.Port(0).IsTransmitOn() {
		t.Fatalf("transmit did not finish in time")
	}
}

func TestAddStreamRejectsUnknownLayerKind(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"name": "bad", "layers": [{"kind": "bogus"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ports/0/streams", strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPortNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ports/99", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCaptureStartStopData(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ports/0/capture/start", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if resp := decodeResponse(t, rr); !resp.Success {
		t.Fatalf("capture/start failed: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ports/0/capture/data", nil)
	rr = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if resp := decodeResponse(t, rr); !resp.Success {
		t.Fatalf("capture/data failed: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ports/0/capture/stop", nil)
	rr = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if resp := decodeResponse(t, rr); !resp.Success {
		t.Fatalf("capture/stop failed: %+v", resp)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "tgen_port_link_up") {
		t.Fatalf("metrics body missing tgen_port_link_up:\n%s", rr.Body.String())
	}
}
