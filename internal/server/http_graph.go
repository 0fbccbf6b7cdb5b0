package server

import (
	"net/http"
)

// handleReloadGraph handles POST /v1/graph/reload.
func (s *ConsoleServer) handleReloadGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.console.LoadGraph(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Session())
}

// handleSetFilter handles PUT /v1/graph/filter.
func (s *ConsoleServer) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FraudOnly *bool `json:"fraud_only"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FraudOnly == nil {
		writeError(w, http.StatusBadRequest, "fraud_only is required")
		return
	}
	s.console.SetFraudOnly(*req.FraudOnly)
	writeJSON(w, http.StatusOK, s.console.Session())
}

// handleGetView handles GET /v1/graph/view.
func (s *ConsoleServer) handleGetView(w http.ResponseWriter, _ *http.Request) {
	v := s.console.View()
	if v == nil {
		writeError(w, http.StatusNotFound, "graph not loaded")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleGetScene handles GET /v1/scene.
func (s *ConsoleServer) handleGetScene(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.console.Frame())
}

// handleClick handles POST /v1/scene/click.
func (s *ConsoleServer) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.console.Click(req.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Session())
}

// handleHover handles POST /v1/scene/hover. An unknown or empty id clears
// the hover and is not an error.
func (s *ConsoleServer) handleHover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	label, ok := s.console.Hover(req.ID)
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "label": label, "found": ok})
}

// handleZoom handles POST /v1/camera/zoom.
func (s *ConsoleServer) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction int `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Direction == 0 {
		writeError(w, http.StatusBadRequest, "direction must be positive (in) or negative (out)")
		return
	}
	writeJSON(w, http.StatusOK, s.console.Zoom(req.Direction))
}
