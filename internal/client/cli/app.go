package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/casekeeper/internal/client/client"
	"github.com/dmitrijs2005/casekeeper/internal/client/config"
	"github.com/dmitrijs2005/casekeeper/internal/client/gate"
	"github.com/dmitrijs2005/casekeeper/internal/client/keys"
	"github.com/dmitrijs2005/casekeeper/internal/client/metrics"
	"github.com/dmitrijs2005/casekeeper/internal/client/models"
	"github.com/dmitrijs2005/casekeeper/internal/client/queue"
	"github.com/dmitrijs2005/casekeeper/internal/client/services"
	"github.com/dmitrijs2005/casekeeper/internal/client/session"
	"github.com/dmitrijs2005/casekeeper/internal/client/store"
	"github.com/dmitrijs2005/casekeeper/internal/cryptox"
	"github.com/dmitrijs2005/casekeeper/internal/logging"
)

// Tokens holds the access token sent along with operations.
type Tokens interface {
	SetToken(raw string) error
	Token() client.StoredToken
}

type App struct {
	config   *config.Config
	auth     services.AuthService
	sessions *session.Registry
	store    *store.EncryptedStore
	queue    *queue.Queue
	gate     *gate.Gate
	tokens   Tokens
	pinger   client.Pinger
	reader   *bufio.Reader
	out      io.Writer
	log      logging.Logger
	closers  []func() error
}

// NewApp opens the configured storage, dials the server lazily and wires
// the session, store, queue and gate together. The gate starts open when
// the server answers a ping.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger, reg prometheus.Registerer) (*App, error) {
	storage, err := client.OpenStorage(ctx, c)
	if err != nil {
		log.Error(ctx, "error opening storage", "driver", c.StoreDriver, "error", err)
		return nil, err
	}

	rpc, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	initial := gate.Closed
	pingCtx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	if rpc.Ping(pingCtx) == nil {
		initial = gate.Open
	}
	cancel()

	a := assemble(c, storage, rpc, rpc, initial, metrics.New(reg), log)
	a.closers = append(a.closers, rpc.Close, storage.Close)
	return a, nil
}

// assemble builds an App around already opened storage and transport.
func assemble(c *config.Config, storage *client.Storage, transport client.Transport, tokens Tokens, initial gate.State, m *metrics.Metrics, log logging.Logger) *App {
	sessions := session.NewRegistry(log)
	deriver := keys.NewDeriver(storage.Metadata, cryptox.KDFParams{
		Time:      c.KDFTime,
		MemoryKiB: c.KDFMemoryKiB,
		Threads:   c.KDFThreads,
	}, log)
	st := store.New(storage.Records, sessions, log, store.WithVerifier(deriver), store.WithMetrics(m))
	q := queue.New(st, queue.NewPreQueue(), log, queue.WithMetrics(m))

	a := &App{
		config:   c,
		sessions: sessions,
		store:    st,
		queue:    q,
		tokens:   tokens,
		pinger:   transport,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		log:      log,
	}

	a.gate = gate.New(q, transport, sessions, initial, log,
		gate.WithMetrics(m),
		gate.WithDeliveryTimeout(c.DeliveryTimeout),
		gate.WithUndeliverable(c.UndeliverableAfter, a.warnUndeliverable),
	)
	a.auth = services.NewAuthService(deriver, sessions, storage, a.gate, log)
	return a
}

// Watch follows server connectivity until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	return a.gate.Watch(ctx, a.pinger, a.config.OnlineCheckInterval, a.config.PingTimeout)
}

// Close ends the session and releases the transport and storage.
func (a *App) Close() error {
	a.sessions.End()
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) isLoggedIn() bool {
	return a.sessions.Active()
}

func (a *App) getStatus() string {
	s := ""
	if uid, err := a.sessions.CurrentUserID(); err == nil {
		s = uid + " "
	}
	if a.gate != nil {
		s += a.gate.State().String()
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) warnUndeliverable(e models.QueuedOperation, failures int, err error) {
	fmt.Fprintln(a.out, color.RedString(
		"operation #%d (%s) failed %d times in a row and stays queued: %v", e.Sequence, e.Name, failures, err))
}
