package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
)

// LeaderboardHandler serves leaderboard standings and freshness.
type LeaderboardHandler struct {
	store  domain.LeaderboardStore
	clock  domain.LeaderboardClock
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler. store may be nil when
// the leaderboard is disabled; the standings routes then answer 404.
func NewLeaderboardHandler(store domain.LeaderboardStore, clock domain.LeaderboardClock, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{store: store, clock: clock, logger: logHandler(logger, "leaderboard")}
}

type entryResponse struct {
	Address          string    `json:"address"`
	XP               int64     `json:"xp"`
	Predictions      int64     `json:"predictions"`
	Wins             int64     `json:"wins"`
	VolumeMicroUSD   int64     `json:"volume_micro_usd"`
	WinningsMicroUSD int64     `json:"winnings_micro_usd"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toEntryResponse(e domain.LeaderboardEntry) entryResponse {
	return entryResponse{
		Address:          e.Address,
		XP:               e.XP,
		Predictions:      e.Predictions,
		Wins:             e.Wins,
		VolumeMicroUSD:   e.VolumeMicroUSD,
		WinningsMicroUSD: e.WinningsMicroUSD,
		UpdatedAt:        e.UpdatedAt,
	}
}

// Updated returns when the leaderboard last changed.
// GET /api/leaderboard/updated
func (h *LeaderboardHandler) Updated(w http.ResponseWriter, r *http.Request) {
	at, err := h.clock.LastUpdated(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"last_updated": nil})
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read leaderboard clock", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read leaderboard clock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last_updated":    at.UTC().Format(time.RFC3339Nano),
		"last_updated_ms": at.UnixMilli(),
	})
}

// Top lists standings by XP.
// GET /api/leaderboard?limit=50&offset=0
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "leaderboard disabled")
		return
	}
	entries, err := h.store.Top(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list leaderboard", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list leaderboard")
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one address's standing.
// GET /api/leaderboard/{address}
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "leaderboard disabled")
		return
	}
	address := strings.ToLower(pathParam(r, "address"))
	e, err := h.store.Get(r.Context(), address)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "address has no leaderboard entry")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get leaderboard entry", slog.String("address", address), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read leaderboard entry")
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(e))
}
