package web

import (
	"encoding/json"
	"net/http"
	"time"
)

// AccountView is the API representation of one polled account.
type AccountView struct {
	Account           string    `json:"account"`
	OvenID            string    `json:"oven_id,omitempty"`
	Host              string    `json:"host,omitempty"`
	UserID            int64     `json:"user_id,omitempty"`
	State             string    `json:"state"`
	RemainingSeconds  int       `json:"remaining_seconds"`
	LastUpdateSuccess bool      `json:"last_update_success"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// StatusView is the API representation of one oven's snapshot.
type StatusView struct {
	OvenID            string         `json:"oven_id"`
	Account           string         `json:"account"`
	State             string         `json:"state"`
	RemainingSeconds  int            `json:"remaining_seconds"`
	LastUpdateSuccess bool           `json:"last_update_success"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Data              map[string]any `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := true
	for _, e := range s.reg.List() {
		if _, ok := e.Coordinator.Last(); !ok {
			healthy = false
			break
		}
	}
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":   status,
		"accounts": len(s.reg.List()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	entries := s.reg.List()
	views := make([]AccountView, 0, len(entries))
	for _, e := range entries {
		snap, ok := e.Coordinator.Last()
		view := AccountView{
			Account:           e.Account,
			OvenID:            e.Coordinator.OvenID(),
			State:             snap.State,
			RemainingSeconds:  snap.RemainingSeconds,
			LastUpdateSuccess: ok,
			UpdatedAt:         snap.UpdatedAt,
		}
		if e.Client != nil {
			view.Host = e.Client.Host()
			view.UserID = e.Client.UserID()
		}
		views = append(views, view)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListOvens(w http.ResponseWriter, r *http.Request) {
	ovens, err := s.store.ListOvens()
	if err != nil {
		s.logger.Error("list ovens", "err", err)
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ovens)
}

func (s *Server) handleOvenStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.reg.ByOven(id)
	if !ok {
		http.Error(w, "unknown oven", http.StatusNotFound)
		return
	}
	snap, success := entry.Coordinator.Last()
	s.writeJSON(w, http.StatusOK, StatusView{
		OvenID:            id,
		Account:           entry.Account,
		State:             snap.State,
		RemainingSeconds:  snap.RemainingSeconds,
		LastUpdateSuccess: success,
		UpdatedAt:         snap.UpdatedAt,
		Data:              snap.Data,
	})
}

func (s *Server) handleOvenRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.reg.ByOven(id)
	if !ok {
		http.Error(w, "unknown oven", http.StatusNotFound)
		return
	}
	if entry.Poller == nil {
		http.Error(w, "poller not running", http.StatusConflict)
		return
	}
	entry.Poller.Kick()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}
