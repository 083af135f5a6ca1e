package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pktforge/tgen/pkg/layer"
	"github.com/pktforge/tgen/pkg/nic"
	"github.com/pktforge/tgen/pkg/port"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) portFromPath(r *http.Request) (*port.Port, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return nil, fmt.Errorf("invalid port id")
	}
	p := s.mgr.Port(id)
	if p == nil {
		return nil, fmt.Errorf("no such port %d", id)
	}
	return p, nil
}

func summarize(p *port.Port) PortSummary {
	return PortSummary{
		ID:           p.ID,
		Name:         p.Name,
		State:        p.State().String(),
		Usable:       p.Usable(),
		TxCoreID:     p.TxCoreID,
		IsTransmitOn: p.IsTransmitOn(),
	}
}

func (s *Server) listPortsHandler(w http.ResponseWriter, r *http.Request) {
	out := make([]PortSummary, 0, len(s.mgr.Ports()))
	for _, p := range s.mgr.Ports() {
		out = append(out, summarize(p))
	}
	writeOK(w, out)
}

func (s *Server) portHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, summarize(p))
}

func (s *Server) linkStateHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	state, err := p.LinkState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := "down"
	if state == nic.LinkUp {
		name = "up"
	}
	writeOK(w, LinkStateResponse{PortID: p.ID, State: name})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.mon.SampleNow()
	rates := s.mon.Rates(p.ID)
	link := "down"
	if rates.Link == nic.LinkUp {
		link = "up"
	}
	writeOK(w, StatsResponse{
		PortID:   p.ID,
		RxPps:    rates.RxPps,
		RxBps:    rates.RxBps,
		TxPps:    rates.TxPps,
		TxBps:    rates.TxBps,
		RxErrors: rates.RxErrors,
		RxDrops:  rates.RxDrops,
		Link:     link,
	})
}

// addStreamHandler builds every layer of the request's chain, renders it
// once at streamIndex 0, and appends that single frame to the port's
// packet list as a one-record set replayed req.Repeats times via
// LoopNextSet. It does not vary fields per repeat: there is no per-index
// rendering or "{VAR}" substitution across a stream's packets.
func (s *Server) addStreamHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Layers) == 0 {
		writeError(w, http.StatusBadRequest, "stream must have at least one layer")
		return
	}

	built := make([]*layer.Layer, 0, len(req.Layers))
	for _, spec := range req.Layers {
		l, err := buildLayer(spec)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		built = append(built, l)
	}

	repeats := req.Repeats
	if repeats <= 0 {
		repeats = 1
	}

	frame := renderFrame(built, 0)
	if ok, err := p.List().Append(0, 0, frame); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeError(w, http.StatusServiceUnavailable, "packet pool exhausted")
		return
	}
	p.List().LoopNextSet(1, repeats, int64(req.RepeatDelayUsec/1_000_000), int64(req.RepeatDelayUsec%1_000_000)*1000)
	p.List().SetLoopMode(req.Loop, req.LoopDelaySec, req.LoopDelayNsec)

	writeOK(w, map[string]string{"name": req.Name, "status": "added"})
}

func (s *Server) clearStreamsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := p.List().Clear(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeOK(w, map[string]string{"status": "cleared"})
}

func (s *Server) startTransmitHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := p.StartTransmit(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeOK(w, map[string]string{"status": "transmitting"})
}

func (s *Server) stopTransmitHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	p.StopTransmit()
	writeOK(w, map[string]string{"status": "stopped"})
}

func (s *Server) isTransmitOnHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w, map[string]bool{"transmitting": p.IsTransmitOn()})
}

func (s *Server) startCaptureHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sink := newCaptureBuffer()
	s.captures.store(p.ID, sink)
	p.List().ArmCapture(sink)
	writeOK(w, map[string]string{"status": "capturing"})
}

func (s *Server) stopCaptureHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	p.List().ArmCapture(nil)
	writeOK(w, map[string]string{"status": "stopped"})
}

func (s *Server) captureDataHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.portFromPath(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sink, ok := s.captures.load(p.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "no capture armed for this port")
		return
	}
	writeOK(w, sink.snapshot())
}
