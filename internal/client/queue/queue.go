// Package queue keeps the ordered list of operations waiting for the
// server. The list is a single encrypted record of the active user, so it
// survives restarts and is invisible to other users of the device.
package queue

import (
	"context"
	"iter"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/casekeeper/internal/client/metrics"
	"github.com/dmitrijs2005/casekeeper/internal/client/models"
	"github.com/dmitrijs2005/casekeeper/internal/client/store"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

// RecordKey is the logical store key of the queue record.
const RecordKey = "request-queue"

// state is the persisted queue. NextSequence is the last sequence handed
// out; it only grows, so sequences are never reused.
type state struct {
	NextSequence uint64                   `json:"next_sequence"`
	Entries      []models.QueuedOperation `json:"entries"`
}

func (s state) append(op models.Operation, at time.Time) (state, models.QueuedOperation) {
	s.NextSequence++
	q := models.QueuedOperation{Sequence: s.NextSequence, Operation: op, EnqueuedAt: at}
	s.Entries = append(s.Entries, q)
	return s, q
}

type Queue struct {
	store   *store.EncryptedStore
	pre     *PreQueue
	now     func() time.Time
	metrics *metrics.Metrics
	log     logging.Logger
}

type Option func(*Queue)

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(s *store.EncryptedStore, pre *PreQueue, log logging.Logger, opts ...Option) *Queue {
	q := &Queue{
		store: s,
		pre:   pre,
		now:   time.Now,
		log:   log.With("module", "queue"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends op under the next sequence number.
func (q *Queue) Enqueue(ctx context.Context, op models.Operation) (models.QueuedOperation, error) {
	if err := op.Validate(); err != nil {
		return models.QueuedOperation{}, err
	}

	var queued models.QueuedOperation
	var depth int
	err := store.Update(ctx, q.store, RecordKey, func(cur state, _ bool) (state, error) {
		next, qo := cur.append(op, q.now().UTC())
		queued, depth = qo, len(next.Entries)
		return next, nil
	})
	if err != nil {
		return models.QueuedOperation{}, err
	}

	q.metrics.SetQueueDepth(depth)
	q.log.Debug(ctx, "operation queued", "sequence", queued.Sequence, "name", op.Name)
	return queued, nil
}

func (q *Queue) load(ctx context.Context) (state, error) {
	var st state
	if _, err := q.store.Get(ctx, RecordKey, &st); err != nil {
		return state{}, err
	}
	slices.SortFunc(st.Entries, func(a, b models.QueuedOperation) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		return 0
	})
	return st, nil
}

// Drain returns the queued entries in sequence order as of the call. The
// sequence is a snapshot; it does not see later enqueues and does not
// remove anything, callers Acknowledge what they delivered. It can be
// ranged over once; call Drain again to start over.
func (q *Queue) Drain(ctx context.Context) (iter.Seq[models.QueuedOperation], error) {
	st, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	entries := st.Entries

	var used atomic.Bool
	return func(yield func(models.QueuedOperation) bool) {
		if used.Swap(true) {
			return
		}
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}, nil
}

// Acknowledge removes the entry with sequence seq. Unknown sequences are
// ignored so a retried acknowledgement is harmless.
func (q *Queue) Acknowledge(ctx context.Context, seq uint64) error {
	depth := -1
	err := store.Update(ctx, q.store, RecordKey, func(cur state, _ bool) (state, error) {
		i := slices.IndexFunc(cur.Entries, func(e models.QueuedOperation) bool { return e.Sequence == seq })
		if i < 0 {
			return cur, store.ErrNoChange
		}
		cur.Entries = slices.Delete(cur.Entries, i, i+1)
		depth = len(cur.Entries)
		return cur, nil
	})
	if err != nil {
		return err
	}
	if depth >= 0 {
		q.metrics.SetQueueDepth(depth)
	}
	return nil
}

func (q *Queue) Entries(ctx context.Context) ([]models.QueuedOperation, error) {
	st, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.Entries, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	st, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	q.metrics.SetQueueDepth(len(st.Entries))
	return len(st.Entries), nil
}

// Stash buffers op in the pre-queue until a session starts.
func (q *Queue) Stash(ctx context.Context, op models.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	n := q.pre.Push(op)
	q.metrics.SetPreQueueDepth(n)
	q.log.Debug(ctx, "operation stashed before login", "name", op.Name)
	return nil
}

func (q *Queue) PeekPreQueue() []models.Operation {
	return q.pre.Peek()
}

// PromotePreQueueEntries moves the pre-queue into the active user's queue
// in one write, keeping their order, and returns how many moved.
func (q *Queue) PromotePreQueueEntries(ctx context.Context) (int, error) {
	ops := q.pre.Peek()
	if len(ops) == 0 {
		return 0, nil
	}

	var depth int
	err := store.Update(ctx, q.store, RecordKey, func(cur state, _ bool) (state, error) {
		at := q.now().UTC()
		for _, op := range ops {
			cur, _ = cur.append(op, at)
		}
		depth = len(cur.Entries)
		return cur, nil
	})
	if err != nil {
		return 0, err
	}

	left := q.pre.dropFirst(len(ops))
	q.metrics.SetQueueDepth(depth)
	q.metrics.SetPreQueueDepth(left)
	q.log.Info(ctx, "pre-queue promoted", "count", len(ops))
	return len(ops), nil
}
