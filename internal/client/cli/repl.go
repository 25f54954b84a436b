package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Get(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Submit(ctx context.Context, args []string) error
	Queue(ctx context.Context) error
	Online(ctx context.Context) error
	Offline(ctx context.Context) error
	Token(ctx context.Context, args []string) error
	Forget(ctx context.Context) error
	Status(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: login [user], submit <name> [json], queue, status, online, offline, token [jwt|clear], exit"
	helpLoggedIn  = "Available commands: get <key>, set <key> [value], rm <key>, submit <name> [json], queue, " +
		"whoami, status, online, offline, token [jwt|clear], logout, forget, exit"
)

// runREPL starts a read–eval–print loop over lines from r.
//
// The first token of a line is the command, the rest are its arguments.
// The loop exits on EOF, when ctx is done, or when the user types "exit"
// or "quit". Command errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("ck %s> ", statusFn()))

		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "login":
			cmdErr = a.Login(ctx, args)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "whoami":
			cmdErr = a.WhoAmI(ctx)

		case "get":
			cmdErr = a.Get(ctx, args)

		case "set":
			cmdErr = a.Set(ctx, args)

		case "rm":
			cmdErr = a.Remove(ctx, args)

		case "submit":
			cmdErr = a.Submit(ctx, args)

		case "queue":
			cmdErr = a.Queue(ctx)

		case "online":
			cmdErr = a.Online(ctx)

		case "offline":
			cmdErr = a.Offline(ctx)

		case "token":
			cmdErr = a.Token(ctx, args)

		case "forget":
			cmdErr = a.Forget(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn(describeError(cmdErr))
		}
		if err != nil {
			return
		}
	}
}

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return err.Error()
	case errors.Is(err, common.ErrUnauthenticated):
		return color.YellowString("not logged in, use 'login'")
	case errors.Is(err, common.ErrWrongCredentials):
		return color.RedString("wrong user or password")
	default:
		return color.RedString("error: %v", err)
	}
}

// Run starts the interactive loop on the app's input. It blocks until the
// user exits, input ends or ctx is done.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "casekeeper (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
