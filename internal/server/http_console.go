package server

import (
	"net/http"

	"github.com/alfredjeanlab/tower/internal/model"
)

// handleSubmit handles POST /v1/transactions.
func (s *ConsoleServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var form model.TransactionForm
	if !decodeBody(w, r, &form) {
		return
	}
	sess, err := s.console.Submit(r.Context(), form)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// handleGetSession handles GET /v1/session.
func (s *ConsoleServer) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.console.Session())
}

// handleSetTab handles PUT /v1/tab.
func (s *ConsoleServer) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tab model.Tab `json:"tab"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.console.SetTab(req.Tab); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Session())
}

// handleSearch handles POST /v1/search.
func (s *ConsoleServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.console.Search(req.Query); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.console.Session())
}
