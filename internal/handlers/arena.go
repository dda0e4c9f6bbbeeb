package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/combat-engine/internal/matchmaker"
)

// Arena is the matchmaking surface used by the arena routes.
type Arena interface {
	Join(ctx context.Context, charID, matchType string) (matchmaker.JoinResult, error)
	Cancel(ctx context.Context, charID, matchType string) (matchmaker.JoinResult, error)
	Poll(ctx context.Context, charID string) (matchmaker.MatchStatus, error)
}

type JoinQueueRequest struct {
	CharID    string `json:"char_id"`
	MatchType string `json:"match_type"`
}

type ArenaHandler struct {
	arena  Arena
	logger *slog.Logger
}

func NewArenaHandler(arena Arena, logger *slog.Logger) *ArenaHandler {
	return &ArenaHandler{arena: arena, logger: logger}
}

// Register mounts the arena routes:
// POST   /v1/arena/queue             - join a queue
// DELETE /v1/arena/queue/{char_id}   - leave the queue (?match_type= optional)
// GET    /v1/arena/match/{char_id}   - poll for a match
func (h *ArenaHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/arena/queue", h.handleJoin)
	mux.HandleFunc("DELETE /v1/arena/queue/{char_id}", h.handleCancel)
	mux.HandleFunc("GET /v1/arena/match/{char_id}", h.handlePoll)
}

func (h *ArenaHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req JoinQueueRequest
	if err := decodeBody(r, &req); err != nil {
		h.logger.Warn("Invalid join request body", "error", err)
		writeBadRequest(w, h.logger, "Invalid JSON in request body")
		return
	}
	if req.MatchType == "" {
		req.MatchType = "1v1"
	}

	res, err := h.arena.Join(r.Context(), req.CharID, req.MatchType)
	if err != nil {
		writeJSON(w, h.logger, statusOf(err), joinError(res, err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *ArenaHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	charID := r.PathValue("char_id")
	res, err := h.arena.Cancel(r.Context(), charID, r.URL.Query().Get("match_type"))
	if err != nil {
		writeJSON(w, h.logger, statusOf(err), joinError(res, err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *ArenaHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	charID := r.PathValue("char_id")
	st, err := h.arena.Poll(r.Context(), charID)
	if err != nil {
		h.logger.Warn("Match poll failed", "char_id", charID, "error", err)
		st.Status = matchmaker.MatchError
		if st.Metadata == nil {
			st.Metadata = map[string]any{}
		}
		st.Metadata["error"] = messageOf(err)
		writeJSON(w, h.logger, statusOf(err), st)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

// joinError keeps the queue response shape on failure.
func joinError(res matchmaker.JoinResult, err error) matchmaker.JoinResult {
	res.Status = matchmaker.JoinError
	if res.Message == "" {
		res.Message = messageOf(err)
	}
	return res
}
