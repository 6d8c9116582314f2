package game

import (
	"sync"
	"time"

	"github.com/okian/catbracket/internal/domain/model"
)

// Ballot collects the single outcome of one presented match. The first of
// an explicit choice or the deadline wins; everything after is ignored.
type Ballot struct {
	seq      int
	matchup  model.Matchup
	deadline time.Time
	decide   func(Outcome)

	mu     sync.Mutex
	closed bool
	timer  *time.Timer
}

// NewBallot opens a ballot for m that resolves to no-decision after
// timeout. decide runs at most once, on the goroutine that resolved it.
func NewBallot(seq int, m model.Matchup, timeout time.Duration, decide func(Outcome)) *Ballot {
	b := &Ballot{seq: seq, matchup: m, deadline: time.Now().Add(timeout), decide: decide}
	b.mu.Lock()
	b.timer = time.AfterFunc(timeout, func() { b.Resolve(NoDecision()) })
	b.mu.Unlock()
	return b
}

// Resolve closes the ballot with o. It returns false when the ballot was
// already closed or o names a photo outside the match.
func (b *Ballot) Resolve(o Outcome) bool {
	if o.Decided() && !b.matchup.Has(o.WinnerID) {
		return false
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	b.timer.Stop()
	b.mu.Unlock()

	b.decide(o)
	return true
}

// Cancel closes the ballot without deciding.
func (b *Ballot) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.timer.Stop()
	}
}

// Closed reports whether an outcome was taken or the ballot was cancelled.
func (b *Ballot) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Seq is the sequence number of the match within its session.
func (b *Ballot) Seq() int { return b.seq }

// Matchup is the match being decided.
func (b *Ballot) Matchup() model.Matchup { return b.matchup }

// Deadline is when the ballot resolves to no-decision on its own.
func (b *Ballot) Deadline() time.Time { return b.deadline }
