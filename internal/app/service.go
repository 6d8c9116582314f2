// Package service wires the rating store, photo catalog, rating engine and
// per-player game sessions behind the operations the HTTP API needs.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/catbracket/internal/adapters/catalog"
	"github.com/okian/catbracket/internal/adapters/mq/queue"
	"github.com/okian/catbracket/internal/adapters/mq/worker"
	"github.com/okian/catbracket/internal/adapters/repository"
	"github.com/okian/catbracket/internal/domain/backup"
	"github.com/okian/catbracket/internal/domain/elo"
	"github.com/okian/catbracket/internal/domain/game"
	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/internal/domain/standings"
	"github.com/okian/catbracket/internal/domain/tournament"
	"github.com/okian/catbracket/internal/domain/types"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

const (
	minJanitorInterval = time.Second
	stopTimeout        = 10 * time.Second
)

// Service implements the API dependencies for the cat tournament.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	catalog catalog.Catalog
	engine  *elo.Engine

	// Mirror
	remote     repository.Store
	mirrorQ    *queue.InMemoryQueue
	mirrorPool *worker.Pool
	queueSize  int
	workers    int

	// Configuration
	tournamentSize int
	matchTimeout   time.Duration
	sessionTTL     time.Duration
	maxSessions    int
	seed           int64
	games          atomic.Int64

	// State
	sessions map[string]*game.Session
	started  bool
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the primary rating store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCatalog sets the photo catalog. Defaults to an empty catalog.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithMirror replicates every rating write to remote through a queue of
// queueSize entries drained by workers goroutines.
func WithMirror(remote repository.Store, queueSize, workers int) Option {
	return func(s *Service) {
		if remote == nil {
			return
		}
		s.remote = remote
		if queueSize > 0 {
			s.queueSize = queueSize
		}
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithTournamentSize sets how many photos enter each tournament.
func WithTournamentSize(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.tournamentSize = n
		}
	}
}

// WithMatchTimeout sets how long a player has to pick.
func WithMatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchTimeout = d
		}
	}
}

// WithSessionTTL sets how long an idle game is kept.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithMaxSessions caps concurrently held games.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithRandomSeed makes bracket shuffling reproducible. Zero seeds from the clock.
func WithRandomSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:      10_000,
		workers:        2,
		tournamentSize: tournament.DefaultSize,
		matchTimeout:   game.DefaultMatchTimeout,
		sessionTTL:     30 * time.Minute,
		maxSessions:    1_000,
		sessions:       make(map[string]*game.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the store, mirror and engine and starts the session janitor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting catbracket service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.catalog == nil {
		s.catalog = catalog.NewStatic(nil)
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.remote != nil {
		if err := s.hydrate(ctx); err != nil {
			// The primary still works; the mirror catches up on new writes.
			s.logger.Warn(ctx, "hydration from mirror failed", logger.Error(err))
			metrics.RecordErrorByComponent("service", "hydrate")
		}
		s.mirrorQ = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.mirrorPool = worker.NewPool(s.workers, s.mirrorQ, s.remote)
		s.mirrorPool.Start(s.ctx)
		s.store = repository.NewMirroredStore(s.store, s.remote, s.mirrorQ)
	}

	s.engine = elo.NewEngine(s.store)
	s.stopCh = make(chan struct{})
	go s.janitor(s.stopCh)

	s.started = true
	s.logger.Info(ctx, "catbracket service started",
		logger.Int("tournamentSize", s.tournamentSize),
		logger.Duration("matchTimeout", s.matchTimeout),
		logger.Bool("mirror", s.remote != nil),
	)
	return nil
}

// hydrate copies remote entries that have seen more matchups than their
// local counterparts into the primary store.
func (s *Service) hydrate(ctx context.Context) error {
	remote, err := s.remote.All(ctx)
	if err != nil {
		return fmt.Errorf("read mirror: %w", err)
	}
	local, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("read primary: %w", err)
	}
	have := make(map[string]int, len(local))
	for _, e := range local {
		have[e.ImageID] = e.Matchups
	}
	var newer []model.RatingEntry
	for _, e := range remote {
		if n, ok := have[e.ImageID]; !ok || e.Matchups > n {
			newer = append(newer, e)
		}
	}
	if len(newer) == 0 {
		return nil
	}
	if err := s.store.BulkSet(ctx, newer); err != nil {
		return fmt.Errorf("hydrate primary: %w", err)
	}
	s.logger.Info(ctx, "hydrated ratings from mirror", logger.Int("entries", len(newer)))
	return nil
}

// Stop closes every game, drains the mirror and closes the stores.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping catbracket service...")

	close(s.stopCh)
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
	metrics.UpdateActiveSessions(0)

	if s.mirrorPool != nil {
		sctx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := s.mirrorPool.Shutdown(sctx); err != nil {
			s.logger.Warn(ctx, "mirror drain incomplete", logger.Error(err))
		}
		cancel()
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "catbracket service stopped")
}

// janitor evicts games idle for longer than the session TTL.
func (s *Service) janitor(stop <-chan struct{}) {
	interval := s.sessionTTL / 2
	if interval < minJanitorInterval {
		interval = minJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.evictIdle(now)
		}
	}
}

func (s *Service) evictIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if now.Sub(sess.IdleSince()) > s.sessionTTL {
			sess.Close()
			delete(s.sessions, id)
			s.logger.Debug(s.ctx, "evicted idle game", logger.String("game_id", id))
		}
	}
	metrics.UpdateActiveSessions(len(s.sessions))
}

// newRand returns a private source for one game. With a fixed seed the
// n-th game of the process always shuffles the same way.
func (s *Service) newRand() *rand.Rand {
	n := s.games.Add(1)
	if s.seed != 0 {
		return rand.New(rand.NewSource(s.seed + n))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano() + n))
}

// CreateGame starts a new tournament for a player.
func (s *Service) CreateGame(ctx context.Context) (game.SessionSnapshot, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return game.SessionSnapshot{}, ErrNotStarted
	}
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("service", "too_many_games")
		return game.SessionSnapshot{}, ErrTooManyGames
	}
	id := uuid.NewString()
	g := game.New(s.catalog, s.store, s.engine,
		game.WithSize(s.tournamentSize),
		game.WithRand(s.newRand()),
	)
	sess := game.NewSession(s.ctx, id, g, s.matchTimeout)
	s.sessions[id] = sess
	metrics.UpdateActiveSessions(len(s.sessions))
	s.mu.Unlock()

	return sess.Start(ctx)
}

func (s *Service) session(id string) (*game.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return sess, nil
}

// Game returns the current snapshot of a game.
func (s *Service) Game(_ context.Context, id string) (game.SessionSnapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return game.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Decide submits a pick for match seq of a game. An empty winnerID is a
// no-decision.
func (s *Service) Decide(ctx context.Context, id string, seq int, winnerID string) (game.SessionSnapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return game.SessionSnapshot{}, err
	}
	return sess.Decide(ctx, seq, winnerID)
}

// RestartGame plays again from the photos the game already loaded.
func (s *Service) RestartGame(ctx context.Context, id string) (game.SessionSnapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return game.SessionSnapshot{}, err
	}
	return sess.Restart(ctx)
}

// EndGame abandons a game. The open match is not recorded.
func (s *Service) EndGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	sess.Close()
	delete(s.sessions, id)
	metrics.UpdateActiveSessions(len(s.sessions))
	return nil
}

func (s *Service) ratings(ctx context.Context) ([]model.RatingEntry, error) {
	s.mu.RLock()
	started, store := s.started, s.store
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	return store.All(ctx)
}

// Leaderboard returns the top limit played photos. limit <= 0 returns all.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	entries, err := s.ratings(ctx)
	if err != nil {
		return nil, err
	}
	return standings.Top(entries, limit), nil
}

// Rank returns the leaderboard row of one photo.
func (s *Service) Rank(ctx context.Context, imageID string) (types.Entry, error) {
	entries, err := s.ratings(ctx)
	if err != nil {
		return types.Entry{}, err
	}
	played := standings.Played(entries)
	pos := standings.Position(played, imageID)
	if pos == 0 {
		return types.Entry{}, fmt.Errorf("%w: %s", ErrNotRanked, imageID)
	}
	return standings.Row(played[pos-1], pos), nil
}

// Photos lists the catalog.
func (s *Service) Photos(ctx context.Context) ([]model.Photo, error) {
	s.mu.RLock()
	started, c := s.started, s.catalog
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	return c.ListPhotos(ctx)
}

// ExportRatings returns every stored entry keyed by image id.
func (s *Service) ExportRatings(ctx context.Context) (backup.Document, error) {
	entries, err := s.ratings(ctx)
	if err != nil {
		return nil, err
	}
	return backup.Export(entries), nil
}

// ImportRatings overwrites the entries named in doc and returns how many
// were written.
func (s *Service) ImportRatings(ctx context.Context, doc backup.Document) (int, error) {
	entries, err := backup.Import(doc)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	s.mu.RLock()
	started, store := s.started, s.store
	s.mu.RUnlock()
	if !started {
		return 0, ErrNotStarted
	}
	if err := store.BulkSet(ctx, entries); err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "ratings imported", logger.Int("entries", len(entries)))
	return len(entries), nil
}

// ResetRatings deletes every stored entry.
func (s *Service) ResetRatings(ctx context.Context) error {
	s.mu.RLock()
	started, store := s.started, s.store
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Warn(ctx, "ratings reset")
	metrics.UpdateRatedPhotos(0)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"activeGames":    len(s.sessions),
		"maxGames":       s.maxSessions,
		"tournamentSize": s.tournamentSize,
		"matchTimeoutMs": s.matchTimeout.Milliseconds(),
		"gamesCreated":   s.games.Load(),
		"mirror":         s.remote != nil,
	}

	if s.started {
		if entries, err := s.store.All(s.ctx); err == nil {
			played := len(standings.Played(entries))
			stats["ratedPhotos"] = played
			metrics.UpdateRatedPhotos(played)
		}
		if s.mirrorQ != nil {
			stats["mirrorQueueLength"] = s.mirrorQ.Len(s.ctx)
			stats["mirrorWritten"] = s.mirrorPool.Processed()
		}
	}
	return stats
}
