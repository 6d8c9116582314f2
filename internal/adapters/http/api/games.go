package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/catbracket/internal/domain/game"
	"github.com/okian/catbracket/internal/domain/model"
)

// GameDependencies drives player sessions.
type GameDependencies interface {
	CreateGame(ctx context.Context) (game.SessionSnapshot, error)
	Game(ctx context.Context, id string) (game.SessionSnapshot, error)
	Decide(ctx context.Context, id string, seq int, winnerID string) (game.SessionSnapshot, error)
	RestartGame(ctx context.Context, id string) (game.SessionSnapshot, error)
	EndGame(ctx context.Context, id string) error
}

// GameHandler serves the /games routes.
type GameHandler struct {
	deps GameDependencies
}

// NewGameHandler creates a new game handler.
func NewGameHandler(deps GameDependencies) *GameHandler {
	return &GameHandler{deps: deps}
}

// decisionRequest is the body of POST /games/{id}/decisions. An empty
// winner_id records a no-decision.
type decisionRequest struct {
	Match    int    `json:"match"`
	WinnerID string `json:"winner_id"`
}

type matchResponse struct {
	Seq      int         `json:"seq"`
	Deadline time.Time   `json:"deadline"`
	Left     model.Photo `json:"left"`
	Right    model.Photo `json:"right"`
}

type championResponse struct {
	Photo    model.Photo `json:"photo"`
	Rank     int         `json:"rank"`
	Rating   int         `json:"rating"`
	Wins     int         `json:"wins"`
	Losses   int         `json:"losses"`
	Matchups int         `json:"matchups"`
}

type gameResponse struct {
	ID             string            `json:"id"`
	State          game.State        `json:"state"`
	Reason         game.Reason       `json:"reason,omitempty"`
	Cause          string            `json:"cause,omitempty"`
	Round          int               `json:"round"`
	TotalRounds    int               `json:"total_rounds"`
	MatchInRound   int               `json:"match_in_round"`
	MatchesInRound int               `json:"matches_in_round"`
	Match          *matchResponse    `json:"match,omitempty"`
	Champion       *championResponse `json:"champion,omitempty"`
	TotalPhotos    int               `json:"total_photos"`
	Restarts       int               `json:"restarts"`
	LastError      string            `json:"last_error,omitempty"`
}

func toGameResponse(s game.SessionSnapshot) gameResponse {
	out := gameResponse{
		ID:             s.ID,
		State:          s.State,
		Reason:         s.Reason,
		Round:          s.Round,
		TotalRounds:    s.TotalRounds,
		MatchInRound:   s.MatchInRound,
		MatchesInRound: s.MatchesInRound,
		TotalPhotos:    s.TotalPhotos,
		Restarts:       s.Restarts,
		LastError:      s.LastError,
	}
	if s.Cause != nil {
		out.Cause = s.Cause.Error()
	}
	if s.Current != nil && s.Seq > 0 {
		out.Match = &matchResponse{Seq: s.Seq, Deadline: s.Deadline, Left: s.Current.Left, Right: s.Current.Right}
	}
	if c := s.Champion; c != nil {
		out.Champion = &championResponse{
			Photo:    c.Photo,
			Rank:     c.Rank,
			Rating:   c.Entry.Rating,
			Wins:     c.Entry.Wins,
			Losses:   c.Entry.Losses,
			Matchups: c.Entry.Matchups,
		}
	}
	return out
}

// HandleCreate handles POST /games.
func (h *GameHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.CreateGame(r.Context())
	if err != nil {
		writeFailure(w, fmt.Errorf("api.create_game: %w", err))
		return
	}
	w.Header().Set("Location", "/games/"+snap.ID)
	writeJSON(w, http.StatusCreated, toGameResponse(snap))
}

// HandleGet handles GET /games/{id}.
func (h *GameHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Game(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, fmt.Errorf("api.get_game: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, toGameResponse(snap))
}

// HandleDecide handles POST /games/{id}/decisions.
func (h *GameHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	const op = "api.decide"
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: invalid JSON: %w", op, ErrBadRequest))
		return
	}
	if req.Match < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: missing match: %w", op, ErrBadRequest))
		return
	}
	snap, err := h.deps.Decide(r.Context(), r.PathValue("id"), req.Match, strings.TrimSpace(req.WinnerID))
	if err != nil {
		writeGameFailure(w, fmt.Errorf("%s: %w", op, err), snap)
		return
	}
	writeJSON(w, http.StatusOK, toGameResponse(snap))
}

// writeGameFailure is writeFailure plus the game as it stands after the
// failed call, so the player can carry on with the current match number.
func writeGameFailure(w http.ResponseWriter, err error, snap game.SessionSnapshot) {
	status, code := classify(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if snap.ID != "" {
		g := toGameResponse(snap)
		resp.Game = &g
	}
	writeJSON(w, status, resp)
}

// HandleRestart handles POST /games/{id}/restart.
func (h *GameHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.RestartGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, fmt.Errorf("api.restart_game: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, toGameResponse(snap))
}

// HandleEnd handles DELETE /games/{id}.
func (h *GameHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.EndGame(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, fmt.Errorf("api.end_game: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
