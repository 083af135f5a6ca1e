package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pktforge/tgen/pkg/controlapi"
)

func newTestServer(t *testing.T, routes map[string]any) *httptest.Server {
	mux := http.NewServeMux()
	for path, data := range routes {
		data := data
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(controlapi.Response{Success: true, Data: data})
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestShowPortsRendersSummaries(t *testing.T) {
	srv := newTestServer(t, map[string]any{
		"GET /api/v1/ports": []controlapi.PortSummary{
			{ID: 0, Name: "tg0", State: "Started", Usable: true, TxCoreID: 1},
		},
	})
	c := New(srv.URL)
	if err := c.handleShow([]string{"ports"}); err != nil {
		t.Fatalf("handleShow: %v", err)
	}
}

func TestTransmitStartPostsToCorrectPath(t *testing.T) {
	var gotMethod, gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ports/3/transmit/start", func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(controlapi.Response{Success: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	if err := c.handleTransmit([]string{"start", "3"}); err != nil {
		t.Fatalf("handleTransmit: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/ports/3/transmit/start" {
		t.Fatalf("got %s %s, want POST /api/v1/ports/3/transmit/start", gotMethod, gotPath)
	}
}

func TestErrorEnvelopeSurfacesAsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ports/9", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(controlapi.Response{Success: false, Error: "no such port 9"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	err := c.handleShow([]string{"port", "9"})
	if err == nil || err.Error() != "no such port 9" {
		t.Fatalf("err = %v, want \"no such port 9\"", err)
	}
}

func TestInvalidPortIDRejectedBeforeRequest(t *testing.T) {
	c := New("http://127.0.0.1:0")
	if err := c.handleShow([]string{"stats", "nope"}); err == nil {
		t.Fatalf("expected error for non-numeric port id")
	}
}
