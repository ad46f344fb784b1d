// Package activity records user actions through a fire-and-forget batching
// sink. Callers never wait on storage and never see its errors.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/storify-asia/storify/pkg/logger"
)

var ErrSinkClosed = errors.New("activity sink closed")

// Entry is one user action.
type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// BatchWriter persists entries in bulk. A batch succeeds or fails as a whole.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

type Options struct {
	BufferSize   int           // queued entries before new ones are dropped
	BatchSize    int           // flush once this many entries are pending
	FlushEvery   time.Duration // flush partial batches after this long
	WriteTimeout time.Duration // per-batch storage deadline
}

func (o *Options) defaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

type Sink struct {
	w    BatchWriter
	log  *slog.Logger
	opts Options
	now  func() time.Time

	queue chan Entry
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewSink starts the background worker. Call Close on shutdown to flush.
func NewSink(w BatchWriter, log *slog.Logger, opts Options) *Sink {
	if w == nil {
		panic("activity: batch writer cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	opts.defaults()

	s := &Sink{
		w:     w,
		log:   log.With(logger.Component("activity")),
		opts:  opts,
		now:   time.Now,
		queue: make(chan Entry, opts.BufferSize),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Log enqueues e. It reports false when the entry was dropped because the
// buffer is full, the sink is closed or the entry has no user.
func (s *Sink) Log(_ context.Context, e Entry) bool {
	if e.UserID == "" || e.Action == "" {
		return false
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- e:
		return true
	default:
		s.log.Warn("activity buffer full, entry dropped", slog.String("action", e.Action))
		return false
	}
}

func (s *Sink) worker() {
	defer s.wg.Done()

	batch := make([]Entry, 0, s.opts.BatchSize)
	ticker := time.NewTicker(s.opts.FlushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// detached from request contexts, which are long gone by now
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()
		if err := s.w.WriteBatch(ctx, batch); err != nil {
			s.log.Error("activity batch write failed", slog.Int("size", len(batch)), logger.Error(err))
		}
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case e := <-s.queue:
					batch = append(batch, e)
					if len(batch) >= s.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting entries and waits for pending ones to be written,
// or for ctx to expire.
func (s *Sink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
