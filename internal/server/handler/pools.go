package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// PoolHandler serves the discovery index.
type PoolHandler struct {
	discovery domain.DiscoveryIndex
	logger    *slog.Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(discovery domain.DiscoveryIndex, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{discovery: discovery, logger: logHandler(logger, "pools")}
}

// ListLive returns the ids of live public pools on a chain in ascending order.
// GET /api/pools/live?chain=sepolia
func (h *PoolHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	chain, err := domain.ParseChain(r.URL.Query().Get("chain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := h.discovery.Live(r.Context(), chain)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list live pools", slog.String("chain", string(chain)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list live pools")
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	writeJSON(w, http.StatusOK, map[string]any{
		"chain": chain,
		"pools": ids,
	})
}
