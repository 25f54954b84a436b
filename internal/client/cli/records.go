package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

// Get prints the JSON value stored under a key of the current user.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("get <key>")
	}

	var v json.RawMessage
	found, err := a.store.Get(ctx, args[0], &v)
	if err != nil {
		return err
	}
	if !found {
		a.println("(not found)")
		return nil
	}
	a.println(string(v))
	return nil
}

// Set stores a value under a key. Text that is valid JSON is stored as is,
// anything else as a JSON string. Without a value on the command line the
// value is read as multi-line input.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("set <key> [value]")
	}
	if !a.isLoggedIn() {
		return common.ErrUnauthenticated
	}

	text := strings.Join(args[1:], " ")
	if text == "" {
		var err error
		if text, err = getMultiline(a.reader, "Enter value", a.out); err != nil {
			return err
		}
	}

	if err := a.store.Set(ctx, args[0], toJSON(text)); err != nil {
		return err
	}
	a.println("OK")
	return nil
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rm <key>")
	}
	if err := a.store.Remove(ctx, args[0]); err != nil {
		return err
	}
	a.println("OK")
	return nil
}

func toJSON(text string) json.RawMessage {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	b, _ := json.Marshal(text)
	return b
}
