package game

import (
	"context"
	"sync"
	"time"

	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

// DefaultMatchTimeout is how long a player has to pick before a match
// resolves to no-decision.
const DefaultMatchTimeout = 8 * time.Second

// SessionSnapshot is a Snapshot plus the ballot of the open match.
type SessionSnapshot struct {
	Snapshot
	ID        string
	Seq       int
	Deadline  time.Time
	LastError string
}

// Session owns a Game for a remote player. Matches are numbered; each
// open match has a Ballot racing the player's decision against the
// deadline. Safe for concurrent use.
type Session struct {
	id      string
	timeout time.Duration
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	game    *Game
	seq     int
	ballot  *Ballot
	lastErr error
	touched time.Time
	closed  bool
}

// NewSession wraps g. ctx bounds the store calls made when a deadline
// fires with no request in flight; Close cancels it.
func NewSession(ctx context.Context, id string, g *Game, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		id:      id,
		timeout: timeout,
		logger:  logger.Get().Named("session").With(logger.String("session_id", id)),
		ctx:     sctx,
		cancel:  cancel,
		game:    g,
		touched: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start starts the game and opens its first match.
func (s *Session) Start(ctx context.Context) (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionSnapshot{}, ErrSessionClosed
	}
	s.touched = time.Now()
	s.game.Start(ctx)
	s.open()
	return s.snapshotLocked(), nil
}

// Restart abandons the current tournament and starts another from the
// cached photo list.
func (s *Session) Restart(ctx context.Context) (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionSnapshot{}, ErrSessionClosed
	}
	s.touched = time.Now()
	if s.ballot != nil {
		s.ballot.Cancel()
	}
	s.lastErr = nil
	s.game.Restart(ctx)
	s.open()
	return s.snapshotLocked(), nil
}

// Decide submits the player's pick for match seq; an empty winnerID
// submits no-decision. It fails with ErrStaleMatch when seq is not the
// open match or the deadline won the race, and with ErrUnknownCompetitor
// when winnerID is not in the match. A store failure is returned and the
// same match is reopened for another attempt.
func (s *Session) Decide(_ context.Context, seq int, winnerID string) (SessionSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SessionSnapshot{}, ErrSessionClosed
	}
	s.touched = time.Now()
	b := s.ballot
	if b == nil || seq != s.seq {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		metrics.RecordDecisionRejected("stale_match")
		return snap, ErrStaleMatch
	}
	if winnerID != "" && !b.Matchup().Has(winnerID) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		metrics.RecordDecisionRejected("unknown_competitor")
		return snap, ErrUnknownCompetitor
	}
	s.mu.Unlock()

	if !b.Resolve(Outcome{WinnerID: winnerID}) {
		metrics.RecordDecisionRejected("stale_match")
		return s.Snapshot(), ErrStaleMatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.lastErr
}

// settle is the ballot callback for match seq.
func (s *Session) settle(seq int, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		return
	}
	if err := s.game.Resolve(s.ctx, o); err != nil {
		s.lastErr = err
		metrics.RecordErrorByComponent("game", "resolve")
		s.logger.Error(s.ctx, "match resolution failed", logger.Int("seq", seq), logger.Error(err))
	} else {
		s.lastErr = nil
	}
	s.open()
}

// open issues a ballot for the current match, if any. Caller holds mu.
func (s *Session) open() {
	s.ballot = nil
	m, ok := s.game.Current()
	if !ok {
		return
	}
	s.seq++
	seq := s.seq
	s.ballot = NewBallot(seq, m, s.timeout, func(o Outcome) { s.settle(seq, o) })
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{Snapshot: s.game.Snapshot(), ID: s.id}
	if s.ballot != nil {
		snap.Seq = s.ballot.Seq()
		snap.Deadline = s.ballot.Deadline()
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// IdleSince returns when the session was last used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Close cancels the open ballot. Writes already in flight complete.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ballot != nil {
		s.ballot.Cancel()
	}
	s.cancel()
}
