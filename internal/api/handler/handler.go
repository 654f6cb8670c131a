// Package handler implements the connector's HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/martijnchel/vg-homey-connector/internal/daily"
	"github.com/martijnchel/vg-homey-connector/internal/guard"
	"github.com/martijnchel/vg-homey-connector/internal/state"
)

// Handler holds dependencies for all routes.
type Handler struct {
	store     *state.Store
	cooldown  *guard.Cooldown
	scheduler *daily.Scheduler
}

// New creates a handler.
func New(store *state.Store, cooldown *guard.Cooldown, scheduler *daily.Scheduler) *Handler {
	return &Handler{
		store:     store,
		cooldown:  cooldown,
		scheduler: scheduler,
	}
}

// Root is the liveness banner.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Virtuagym Connector Online."))
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the sync state: watermark, cooldown, and daily gates.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"watermark":         snap.Watermark,
		"total_sent_today":  snap.TotalSentToday,
		"report_sent_today": snap.ReportSentToday,
		"reported_members":  snap.ReportedMembers,
		"cooldown_active":   h.cooldown.Active(),
		"cooldown_until":    h.cooldown.Until(),
	})
}

// RunDailyTotal triggers the daily total job without consuming its gate.
func (h *Handler) RunDailyTotal(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RunTotal(r.Context(), true); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// RunExpiryReport triggers the expiring-contract report without consuming
// its gate.
func (h *Handler) RunExpiryReport(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RunReport(r.Context(), true); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
