package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/livechat/internal/chat"
)

// ErrWriterStopped is returned by Flush when the writer exited before the
// requested version became durable.
var ErrWriterStopped = errors.New("persistence writer stopped")

// RetryPolicy bounds how a failed write is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used for zero-valued fields of a RetryPolicy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

func (p RetryPolicy) sanitize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(DefaultRetryPolicy.MaxDelay, p.BaseDelay)
	}
	return p
}

// Writer is the single writer in front of a Store. Every submitted
// snapshot gets a version; snapshots are written by one goroutine in
// version order, and a snapshot superseded before it is written is
// skipped because the newer one already contains it.
type Writer struct {
	store  Store
	log    *slog.Logger
	policy RetryPolicy

	mu             sync.Mutex
	pending        []chat.Entry
	pendingVersion uint64
	submitted      uint64
	persisted      uint64
	changed        chan struct{}

	wake chan struct{}
	done chan struct{}
}

// NewWriter creates a writer for store. Run must be started for anything
// to be written.
func NewWriter(store Store, log *slog.Logger, policy RetryPolicy) *Writer {
	return &Writer{
		store:   store,
		log:     log,
		policy:  policy.sanitize(),
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Submit queues snapshot for writing and returns its version. It never
// blocks on I/O.
func (w *Writer) Submit(snapshot []chat.Entry) uint64 {
	w.mu.Lock()
	w.submitted++
	version := w.submitted
	w.pending = snapshot
	w.pendingVersion = version
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return version
}

// Persisted returns the highest version known to be durable.
func (w *Writer) Persisted() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.persisted
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Run writes queued snapshots until ctx is cancelled, then makes one last
// attempt to write whatever is still pending.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.writePending(context.WithoutCancel(ctx))
			w.log.Debug("Persistence writer stopped", "persisted", w.Persisted())
			return
		case <-w.wake:
			w.writePending(ctx)
		}
	}
}

// Flush blocks until every snapshot submitted so far is durable.
func (w *Writer) Flush(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.persisted >= w.submitted {
			w.mu.Unlock()
			return nil
		}
		changed := w.changed
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-w.done:
			if w.Persisted() >= w.submittedVersion() {
				return nil
			}
			return ErrWriterStopped
		}
	}
}

func (w *Writer) submittedVersion() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitted
}

func (w *Writer) take() ([]chat.Entry, uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingVersion == 0 {
		return nil, 0, false
	}
	snapshot, version := w.pending, w.pendingVersion
	w.pending, w.pendingVersion = nil, 0
	return snapshot, version, true
}

// requeue puts a failed snapshot back unless something newer arrived.
func (w *Writer) requeue(snapshot []chat.Entry, version uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingVersion == 0 {
		w.pending, w.pendingVersion = snapshot, version
	}
}

func (w *Writer) superseded(version uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingVersion > version
}

func (w *Writer) markPersisted(version uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if version > w.persisted {
		w.persisted = version
	}
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *Writer) writePending(ctx context.Context) {
	snapshot, version, ok := w.take()
	if !ok {
		return
	}

	delay := w.policy.BaseDelay
	for attempt := 1; ; attempt++ {
		err := w.store.Persist(ctx, snapshot)
		if err == nil {
			w.markPersisted(version)
			w.log.Debug("Chat log persisted", "version", version, "entries", len(snapshot))
			return
		}

		w.log.Warn("Chat log write failed", "version", version, "attempt", attempt, "error", err)

		if attempt >= w.policy.MaxAttempts {
			w.log.Error("Chat log write abandoned after retries; it will be retried with the next snapshot",
				"version", version, "attempts", attempt, "error", err)
			w.requeue(snapshot, version)
			return
		}
		if w.superseded(version) {
			w.log.Debug("Chat log snapshot superseded", "version", version)
			return
		}

		select {
		case <-ctx.Done():
			w.requeue(snapshot, version)
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, w.policy.MaxDelay)
	}
}
