package handler

import (
	"net/http"
)

// StatusHandler serves the run mode and the chains this process settles.
type StatusHandler struct {
	Mode   string
	Chains []string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, chains []string) *StatusHandler {
	return &StatusHandler{Mode: mode, Chains: chains}
}

// GetStatus responds with the current mode and chains.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.Mode,
		"chains": h.Chains,
	})
}
