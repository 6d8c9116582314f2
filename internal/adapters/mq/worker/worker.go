package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

const (
	defaultWorkerCount    = 2
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultWriteTimeout   = 5 * time.Second
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
	laneBuffer            = 64
)

// Writer persists one entry on the mirror side.
type Writer interface {
	Set(ctx context.Context, entry model.RatingEntry) error
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.RatingEntry
}

// Worker drains entries from a queue into a Writer.
type Worker interface {
	// Run processes entries until the queue is drained, ctx is cancelled
	// or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current entry.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue        Queue
	writer       Writer
	name         string
	retries      int
	backoff      time.Duration
	writeTimeout time.Duration
	processed    *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:        queue,
		writer:       writer,
		name:         "worker",
		retries:      defaultRetries,
		backoff:      defaultBackoff,
		writeTimeout: defaultWriteTimeout,
		processed:    new(atomic.Int64),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("mirror"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	entries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "mirror write failed", logger.String("image_id", e.ImageID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker without draining the queue.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, e model.RatingEntry) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	delay := w.backoff
	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		wctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
		err = w.writer.Set(wctx, e)
		cancel()
		if err == nil {
			w.processed.Add(1)
			return nil
		}
		w.logger.Debug(ctx, "mirror write attempt failed", logger.Int("attempt", attempt+1), logger.Error(err))
	}

	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("mirror", "write_failed")
	metrics.RecordErrorByType("mirror_write", "medium")
	return fmt.Errorf("mirror %s after %d attempts: %w", e.ImageID, w.retries+1, err)
}

// lane feeds one worker of a pool.
type lane chan model.RatingEntry

func (l lane) Dequeue(context.Context) <-chan model.RatingEntry { return l }

// Pool runs several workers over one queue. Entries for the same photo
// always go to the same worker, so the mirror sees them in publish order.
type Pool struct {
	workers   []*InMemoryWorker
	lanes     []lane
	queue     Queue
	processed *atomic.Int64

	stop chan struct{}
	halt chan struct{}
	last time.Time

	logger logger.Logger
}

// NewPool creates workerCount workers sharing queue and writer.
func NewPool(workerCount int, queue Queue, writer Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		lanes:     make([]lane, workerCount),
		queue:     queue,
		processed: new(atomic.Int64),
		stop:      make(chan struct{}),
		halt:      make(chan struct{}),
		last:      time.Now(),
		logger:    logger.Get().Named("mirror-pool"),
	}
	for i := range p.workers {
		p.lanes[i] = make(lane, laneBuffer)
		wopts := append([]Option{WithName("mirror-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(p.lanes[i], writer, wopts...)
		w.processed = p.processed
		p.workers[i] = w
	}
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
	metrics.UpdateWorkerActiveCount(len(p.workers))
	go p.updateMetricsLoop(ctx)
}

// dispatch moves entries from the queue to the lane owning their photo.
// Lanes are closed once the queue is drained so workers can finish.
func (p *Pool) dispatch(ctx context.Context) {
	defer func() {
		for _, l := range p.lanes {
			close(l)
		}
	}()
	for e := range p.queue.Dequeue(ctx) {
		l := p.lanes[p.laneFor(e.ImageID)]
		select {
		case l <- e:
		case <-ctx.Done():
			return
		case <-p.halt:
			return
		}
	}
}

func (p *Pool) laneFor(imageID string) int {
	return int(xxhash.Sum64String(imageID) % uint64(len(p.lanes)))
}

// Processed returns how many entries were written successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

func (p *Pool) updateMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	var prev int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case now := <-ticker.C:
			cur := p.processed.Load()
			if secs := now.Sub(p.last).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(cur-prev) / secs)
			}
			prev, p.last = cur, now
		}
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still
// running when ctx (capped at 30s) expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.stop)
	defer close(p.halt)

	sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var err error
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-sctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			if serr := w.Shutdown(context.Background()); serr != nil && err == nil {
				err = serr
			}
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return err
}
