package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// Combat is the session surface used by the combat routes.
type Combat interface {
	StartPvE(ctx context.Context, charID, monsterID, locationID string) (string, error)
	Submit(ctx context.Context, sessionID string, pair combat.ActionPair) (*combat.ActionResult, error)
	Inspect(ctx context.Context, sessionID string) (*combat.SessionView, error)
	Terminate(ctx context.Context, sessionID string, reason combat.Reason) (combat.ResolutionSummary, error)
}

type StartPvERequest struct {
	CharID     string `json:"char_id"`
	MonsterID  string `json:"monster_id"`
	LocationID string `json:"location_id,omitempty"`
}

type StartPvEResponse struct {
	SessionID string `json:"session_id"`
}

type TerminateRequest struct {
	Reason combat.Reason `json:"reason"`
}

type CombatHandler struct {
	combat Combat
	logger *slog.Logger
}

func NewCombatHandler(c Combat, logger *slog.Logger) *CombatHandler {
	return &CombatHandler{combat: c, logger: logger}
}

// Register mounts the combat routes:
// POST /v1/combat                        - start a PvE encounter
// GET  /v1/combat/{session_id}           - inspect a session
// POST /v1/combat/{session_id}/actions   - submit an action pair
// POST /v1/combat/{session_id}/terminate - end a session early
func (h *CombatHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/combat", h.handleStart)
	mux.HandleFunc("GET /v1/combat/{session_id}", h.handleInspect)
	mux.HandleFunc("POST /v1/combat/{session_id}/actions", h.handleSubmit)
	mux.HandleFunc("POST /v1/combat/{session_id}/terminate", h.handleTerminate)
}

func (h *CombatHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartPvERequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, h.logger, "Invalid JSON in request body")
		return
	}
	sid, err := h.combat.StartPvE(r.Context(), req.CharID, req.MonsterID, req.LocationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("PvE session started", "session_id", sid, "char_id", req.CharID, "monster_id", req.MonsterID)
	writeJSON(w, h.logger, http.StatusCreated, StartPvEResponse{SessionID: sid})
}

func (h *CombatHandler) handleInspect(w http.ResponseWriter, r *http.Request) {
	view, err := h.combat.Inspect(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}

// handleSubmit always answers with an ActionResult; failures carry the
// reason in its error field.
func (h *CombatHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("session_id")
	var pair combat.ActionPair
	if err := decodeBody(r, &pair); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, combat.ActionResult{
			SessionID: sid,
			Events:    []combat.Event{},
			Error:     "Invalid JSON in request body",
		})
		return
	}

	res, err := h.combat.Submit(r.Context(), sid, pair)
	if err != nil {
		level := slog.LevelWarn
		if statusOf(err) >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "Action rejected",
			"session_id", sid,
			"move_id", pair.PrimaryMove.MoveID,
			"code", errs.GetCode(err),
			"error", err)
		writeJSON(w, h.logger, statusOf(err), combat.ActionResult{
			SessionID: sid,
			MoveID:    pair.PrimaryMove.MoveID,
			Events:    []combat.Event{},
			Error:     messageOf(err),
		})
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, h.logger, status, res)
}

func (h *CombatHandler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	req := TerminateRequest{Reason: combat.ReasonAdmin}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, h.logger, "Invalid JSON in request body")
			return
		}
	}
	summary, err := h.combat.Terminate(r.Context(), r.PathValue("session_id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, summary)
}
