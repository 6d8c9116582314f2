// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	service "github.com/okian/catbracket/internal/app"
	"github.com/okian/catbracket/internal/domain/backup"
	"github.com/okian/catbracket/internal/domain/game"
	"github.com/okian/catbracket/internal/domain/types"
)

const (
	defaultMaxLimit      = 100
	defaultDecisionRate  = 20
	defaultDecisionBurst = 40
	maxImportBytes       = 8 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	GameDependencies
	PhotoDependencies
	LeaderboardDependencies
	RankDependencies
	RatingDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	gameHandler        *GameHandler
	photoHandler       *PhotoHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	ratingHandler      *RatingHandler

	decisions *rate.Limiter
}

type serverOptions struct {
	maxLimit      int
	decisionRate  float64
	decisionBurst int
}

// Option configures a Server.
type Option func(*serverOptions)

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithDecisionRate throttles POST /games/{id}/decisions across all games.
func WithDecisionRate(perSec float64, burst int) Option {
	return func(o *serverOptions) {
		if perSec > 0 && burst > 0 {
			o.decisionRate, o.decisionBurst = perSec, burst
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{
		maxLimit:      defaultMaxLimit,
		decisionRate:  defaultDecisionRate,
		decisionBurst: defaultDecisionBurst,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		gameHandler:        NewGameHandler(deps),
		photoHandler:       NewPhotoHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLimit),
		rankHandler:        NewRankHandler(deps),
		ratingHandler:      NewRatingHandler(deps),
		decisions:          rate.NewLimiter(rate.Limit(o.decisionRate), o.decisionBurst),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /photos", MetricsMiddleware(s.photoHandler.HandleListPhotos, "photos"))

	mux.HandleFunc("POST /games", MetricsMiddleware(s.gameHandler.HandleCreate, "games_create"))
	mux.HandleFunc("GET /games/{id}", MetricsMiddleware(s.gameHandler.HandleGet, "games_get"))
	mux.HandleFunc("DELETE /games/{id}", MetricsMiddleware(s.gameHandler.HandleEnd, "games_end"))
	mux.HandleFunc("POST /games/{id}/restart", MetricsMiddleware(s.gameHandler.HandleRestart, "games_restart"))
	mux.HandleFunc("POST /games/{id}/decisions",
		MetricsMiddleware(RateLimit(s.gameHandler.HandleDecide, s.decisions), "games_decide"))

	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{image_id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))

	mux.HandleFunc("GET /ratings/export", MetricsMiddleware(s.ratingHandler.HandleExport, "ratings_export"))
	mux.HandleFunc("POST /ratings/import", MetricsMiddleware(s.ratingHandler.HandleImport, "ratings_import"))
	mux.HandleFunc("DELETE /ratings", MetricsMiddleware(s.ratingHandler.HandleReset, "ratings_reset"))
}

type errorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Game    *gameResponse `json:"game,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates upstream errors to a status and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrGameNotFound):
		return http.StatusNotFound, "game_not_found"
	case errors.Is(err, service.ErrNotRanked):
		return http.StatusNotFound, "not_ranked"
	case errors.Is(err, game.ErrStaleMatch):
		return http.StatusConflict, "stale_match"
	case errors.Is(err, game.ErrUnknownCompetitor):
		return http.StatusBadRequest, "unknown_competitor"
	case errors.Is(err, game.ErrSessionClosed):
		return http.StatusGone, "game_closed"
	case errors.Is(err, backup.ErrInvalidEntry), errors.Is(err, service.ErrInvalidArgument), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrTooManyGames), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
