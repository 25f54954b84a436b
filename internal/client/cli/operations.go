package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/casekeeper/internal/client/gate"
	"github.com/dmitrijs2005/casekeeper/internal/client/models"
)

// Submit hands an operation to the gate. The payload is the JSON after the
// name, or multi-line input when there is none; empty means {}.
func (a *App) Submit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("submit <name> [json]")
	}

	payload := strings.Join(args[1:], " ")
	if payload == "" {
		var err error
		if payload, err = getMultiline(a.reader, "Enter JSON payload", a.out); err != nil {
			return err
		}
	}
	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return usage("payload must be JSON")
	}

	op := models.Operation{Name: args[0], Payload: json.RawMessage(payload)}
	outcome, err := a.gate.Submit(ctx, op)
	if err != nil {
		return err
	}

	switch outcome {
	case gate.Sent:
		a.println(color.GreenString("sent"))
	case gate.Queued:
		a.println(color.YellowString("queued, will be sent when the server is reachable"))
	case gate.Stashed:
		a.println(color.YellowString("held until login"))
	}
	return nil
}

// Queue lists the operations waiting for the server.
func (a *App) Queue(ctx context.Context) error {
	if pre := a.queue.PeekPreQueue(); len(pre) > 0 {
		a.printf("%d operation(s) held until login\n", len(pre))
	}
	if !a.isLoggedIn() {
		return nil
	}

	entries, err := a.queue.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.println("queue is empty")
		return nil
	}
	for _, e := range entries {
		a.printf("#%-4d %-20s %s  %s\n", e.Sequence, e.Name, e.EnqueuedAt.Local().Format(time.DateTime), e.ID)
	}
	return nil
}

// Online forces the gate open and replays the queue.
func (a *App) Online(ctx context.Context) error {
	if err := a.gate.SetOnline(ctx); err != nil {
		return err
	}
	a.println("online")
	return nil
}

// Offline forces the gate closed. The watcher opens it again on the next
// successful ping.
func (a *App) Offline(ctx context.Context) error {
	a.gate.SetOffline(ctx)
	a.println("offline")
	return nil
}

// Token shows, sets or clears the access token sent with operations.
func (a *App) Token(ctx context.Context, args []string) error {
	switch {
	case len(args) == 0:
		a.println(describeToken(a.tokens))
		return nil
	case len(args) == 1 && args[0] == "clear":
		_ = a.tokens.SetToken("")
		a.println("token cleared")
		return nil
	case len(args) == 1:
		if err := a.tokens.SetToken(args[0]); err != nil {
			return err
		}
		a.println(describeToken(a.tokens))
		return nil
	default:
		return usage("token [jwt|clear]")
	}
}

func describeToken(t Tokens) string {
	tok := t.Token()
	if tok.Raw == "" {
		return "no token"
	}
	s := "token"
	if tok.Subject != "" {
		s += " for " + tok.Subject
	}
	if !tok.ExpiresAt.IsZero() {
		if tok.Expired(time.Now()) {
			return color.RedString("%s expired at %s", s, tok.ExpiresAt.Local().Format(time.DateTime))
		}
		s += " valid until " + tok.ExpiresAt.Local().Format(time.DateTime)
	}
	return s
}

// Status prints the session, connectivity and queue state.
func (a *App) Status(ctx context.Context) error {
	user := "(none)"
	if uid, err := a.sessions.CurrentUserID(); err == nil {
		user = uid
	}
	a.printf("user:      %s\n", user)
	a.printf("server:    %s (%s)\n", a.config.ServerEndpointAddr, a.gate.State())

	queued := "-"
	if a.isLoggedIn() {
		n, err := a.queue.Len(ctx)
		if err != nil {
			return err
		}
		queued = fmt.Sprint(n)
	}
	a.printf("queued:    %s\n", queued)
	a.printf("pre-login: %d\n", len(a.queue.PeekPreQueue()))
	a.printf("token:     %s\n", describeToken(a.tokens))
	return nil
}
