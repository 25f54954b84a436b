// Package gate decides whether an operation goes to the server right away
// or waits in the queue, and replays the queue when the server comes back.
package gate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/casekeeper/internal/client/client"
	"github.com/dmitrijs2005/casekeeper/internal/client/metrics"
	"github.com/dmitrijs2005/casekeeper/internal/client/models"
	"github.com/dmitrijs2005/casekeeper/internal/client/store"
	"github.com/dmitrijs2005/casekeeper/internal/common"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Outcome tells the caller of Submit where the operation ended up.
type Outcome int

const (
	Sent Outcome = iota
	Queued
	Stashed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Queued:
		return "queued"
	default:
		return "stashed"
	}
}

// OperationQueue is the persisted queue of the active user plus its
// pre-login buffer.
type OperationQueue interface {
	Enqueue(ctx context.Context, op models.Operation) (models.QueuedOperation, error)
	Drain(ctx context.Context) (iter.Seq[models.QueuedOperation], error)
	Acknowledge(ctx context.Context, seq uint64) error
	Len(ctx context.Context) (int, error)
	Stash(ctx context.Context, op models.Operation) error
	PromotePreQueueEntries(ctx context.Context) (int, error)
}

type Sender interface {
	Send(ctx context.Context, op models.Operation) error
}

type Sessions interface {
	CurrentUserID() (string, error)
}

// UndeliverableFunc is called once when the same head entry has failed
// the configured number of times in a row.
type UndeliverableFunc func(entry models.QueuedOperation, failures int, err error)

type Gate struct {
	queue    OperationQueue
	sender   Sender
	sessions Sessions
	log      logging.Logger
	metrics  *metrics.Metrics

	deliveryTimeout    time.Duration
	undeliverableAfter int
	onUndeliverable    UndeliverableFunc

	// deliverMu serializes everything that talks to the server so that
	// operations leave in queue order.
	deliverMu sync.Mutex

	mu           sync.Mutex
	state        State
	headSequence uint64
	headFailures int
}

type Option func(*Gate)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithDeliveryTimeout bounds each replayed send. Zero means no bound.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(g *Gate) { g.deliveryTimeout = d }
}

func WithUndeliverable(after int, fn UndeliverableFunc) Option {
	return func(g *Gate) {
		g.undeliverableAfter = after
		g.onUndeliverable = fn
	}
}

// New returns a gate in the given initial state, usually the result of a
// startup ping.
func New(q OperationQueue, sender Sender, sessions Sessions, initial State, log logging.Logger, opts ...Option) *Gate {
	g := &Gate{
		queue:    q,
		sender:   sender,
		sessions: sessions,
		state:    initial,
		log:      log.With("module", "gate"),
	}
	for _, o := range opts {
		o(g)
	}
	g.metrics.SetGateOpen(initial == Open)
	return g
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) setState(ctx context.Context, s State) bool {
	g.mu.Lock()
	changed := g.state != s
	g.state = s
	g.mu.Unlock()

	if changed {
		g.metrics.SetGateOpen(s == Open)
		g.log.Info(ctx, "gate "+s.String())
	}
	return changed
}

func unreachable(err error) bool {
	return errors.Is(err, client.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// sessionGone reports that the user a call was bound to is no longer the
// active one.
func sessionGone(err error) bool {
	return errors.Is(err, common.ErrUnauthenticated) || errors.Is(err, store.ErrSessionChanged)
}

func (g *Gate) sessionIs(userID string) bool {
	uid, err := g.sessions.CurrentUserID()
	return err == nil && uid == userID
}

// Submit routes op: without a session it is stashed, with the gate closed
// it is queued, with the gate open it is sent. A send that fails because
// the server is unreachable queues the operation and closes the gate.
// Other send errors mean the server refused it and are returned.
func (g *Gate) Submit(ctx context.Context, op models.Operation) (Outcome, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if err := op.Validate(); err != nil {
		return 0, err
	}

	userID, err := g.sessions.CurrentUserID()
	if err != nil {
		if err := g.queue.Stash(ctx, op); err != nil {
			return 0, err
		}
		return Stashed, nil
	}
	ctx = store.BindUser(ctx, userID)

	g.deliverMu.Lock()
	defer g.deliverMu.Unlock()

	if g.State() == Closed {
		return g.enqueue(ctx, op)
	}

	pending, err := g.queue.Len(ctx)
	if err != nil {
		return 0, err
	}
	if pending > 0 {
		// Older entries go first.
		outcome, err := g.enqueue(ctx, op)
		if err != nil {
			return 0, err
		}
		if err := g.drainLocked(ctx, userID); err != nil {
			g.log.Warn(ctx, "replay halted", "error", err)
		}
		return outcome, nil
	}

	err = g.sender.Send(ctx, op)
	switch {
	case err == nil:
		g.metrics.Delivered()
		return Sent, nil
	case unreachable(err):
		g.metrics.DeliveryFailed("unavailable")
		g.log.Warn(ctx, "server unreachable, queueing", "name", op.Name, "error", err)
		g.setState(ctx, Closed)
		return g.enqueue(ctx, op)
	default:
		g.metrics.DeliveryFailed("rejected")
		return 0, fmt.Errorf("%w: %w", common.ErrDeliveryFailed, err)
	}
}

func (g *Gate) enqueue(ctx context.Context, op models.Operation) (Outcome, error) {
	if _, err := g.queue.Enqueue(ctx, op); err != nil {
		return 0, err
	}
	return Queued, nil
}

// SetOnline opens the gate and replays the queue.
func (g *Gate) SetOnline(ctx context.Context) error {
	g.setState(ctx, Open)
	return g.drain(ctx)
}

// SetOffline closes the gate. A replay in progress stops before its next
// entry.
func (g *Gate) SetOffline(ctx context.Context) {
	g.setState(ctx, Closed)
}

// SessionStarted moves operations submitted before login into the new
// user's queue and replays it if the gate is open.
func (g *Gate) SessionStarted(ctx context.Context) error {
	n, err := g.queue.PromotePreQueueEntries(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		g.log.Info(ctx, "pre-login operations queued", "count", n)
	}

	g.mu.Lock()
	g.headSequence, g.headFailures = 0, 0
	g.mu.Unlock()

	if g.State() == Open {
		return g.drain(ctx)
	}
	return nil
}

func (g *Gate) drain(ctx context.Context) error {
	userID, err := g.sessions.CurrentUserID()
	if err != nil {
		return nil
	}

	g.deliverMu.Lock()
	defer g.deliverMu.Unlock()
	return g.drainLocked(ctx, userID)
}

// drainLocked delivers queued entries in order, acknowledging each one
// after the server accepted it, and starts over while new entries keep
// appearing. The first failure closes the gate. ctx is only checked
// between entries; a send that already started runs to completion.
//
// The replay belongs to the user active when it starts. If someone else
// logs in meanwhile it stops; the other user's queue is left alone.
func (g *Gate) drainLocked(ctx context.Context, userID string) error {
	ctx = store.BindUser(ctx, userID)

	for {
		entries, err := g.queue.Drain(ctx)
		if err != nil {
			if sessionGone(err) {
				return nil
			}
			return err
		}

		delivered := 0
		for e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if g.State() != Open {
				return nil
			}
			if !g.sessionIs(userID) {
				g.log.Info(ctx, "session changed, replay stopped", "user", userID)
				return nil
			}

			if err := g.deliver(ctx, e.Operation); err != nil {
				g.deliveryFailed(ctx, e, err)
				g.setState(ctx, Closed)
				return fmt.Errorf("%w: sequence %d: %w", common.ErrDeliveryFailed, e.Sequence, err)
			}
			g.delivered(e.Sequence)

			if err := g.queue.Acknowledge(context.WithoutCancel(ctx), e.Sequence); err != nil {
				// Delivered but still queued; the server drops the
				// duplicate by operation id on the next replay.
				if sessionGone(err) {
					g.log.Info(ctx, "session changed, replay stopped", "user", userID, "sequence", e.Sequence)
					return nil
				}
				return err
			}
			g.log.Debug(ctx, "operation replayed", "sequence", e.Sequence, "name", e.Name)
			delivered++
		}

		if delivered == 0 {
			return nil
		}
	}
}

func (g *Gate) deliver(ctx context.Context, op models.Operation) error {
	ctx = context.WithoutCancel(ctx)
	if g.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.deliveryTimeout)
		defer cancel()
	}
	return g.sender.Send(ctx, op)
}

func (g *Gate) delivered(seq uint64) {
	g.metrics.Delivered()

	g.mu.Lock()
	if g.headSequence == seq {
		g.headSequence, g.headFailures = 0, 0
	}
	g.mu.Unlock()
}

func (g *Gate) deliveryFailed(ctx context.Context, e models.QueuedOperation, err error) {
	reason := "rejected"
	if unreachable(err) {
		reason = "unavailable"
	}
	g.metrics.DeliveryFailed(reason)

	g.mu.Lock()
	if g.headSequence != e.Sequence {
		g.headSequence, g.headFailures = e.Sequence, 0
	}
	g.headFailures++
	failures := g.headFailures
	g.mu.Unlock()

	g.log.Warn(ctx, "replay halted", "sequence", e.Sequence, "name", e.Name, "attempt", failures, "error", err)

	if g.undeliverableAfter > 0 && failures == g.undeliverableAfter {
		g.log.Error(ctx, "operation looks undeliverable", "sequence", e.Sequence, "name", e.Name, "attempts", failures)
		if g.onUndeliverable != nil {
			g.onUndeliverable(e, failures, err)
		}
	}
}
