package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  map[string][]string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string][]string{}
	}
	f.args[name] = args
	return f.err
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(ctx context.Context, args []string) error {
	f.loggedIn = true
	return f.record("login", args)
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) WhoAmI(ctx context.Context) error { return f.record("whoami", nil) }
func (f *fakeExec) Get(ctx context.Context, args []string) error { return f.record("get", args) }
func (f *fakeExec) Set(ctx context.Context, args []string) error { return f.record("set", args) }
func (f *fakeExec) Remove(ctx context.Context, args []string) error { return f.record("rm", args) }
func (f *fakeExec) Submit(ctx context.Context, args []string) error { return f.record("submit", args) }
func (f *fakeExec) Queue(ctx context.Context) error { return f.record("queue", nil) }
func (f *fakeExec) Online(ctx context.Context) error { return f.record("online", nil) }
func (f *fakeExec) Offline(ctx context.Context) error { return f.record("offline", nil) }
func (f *fakeExec) Token(ctx context.Context, args []string) error { return f.record("token", args) }
func (f *fakeExec) Forget(ctx context.Context) error { return f.record("forget", nil) }
func (f *fakeExec) Status(ctx context.Context) error { return f.record("status", nil) }

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"login alice",
		"set draft hello world",
		"get draft",
		"rm draft",
		"submit createCase {\"title\":\"x\"}",
		"queue",
		"offline",
		"online",
		"token clear",
		"whoami",
		"status",
		"",
		"forget",
		"logout",
		"exit",
		"whoami",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, rdr(input))

	assert.Equal(t, []string{
		"login", "set", "get", "rm", "submit", "queue", "offline", "online",
		"token", "whoami", "status", "forget", "logout",
	}, exec.calls)
	assert.Equal(t, []string{"alice"}, exec.args["login"])
	assert.Equal(t, []string{"draft", "hello", "world"}, exec.args["set"])
	assert.Equal(t, []string{"createCase", `{"title":"x"}`}, exec.args["submit"])
}

func TestRunREPL_HelpDependsOnSession(t *testing.T) {
	lines := capturePrintln(t)

	runREPL(context.Background(), &fakeExec{}, func() string { return "" }, rdr("help\n"))
	require.Contains(t, *lines, helpLoggedOut)

	runREPL(context.Background(), &fakeExec{loggedIn: true}, func() string { return "" }, rdr("help\n"))
	require.Contains(t, *lines, helpLoggedIn)
}

func TestRunREPL_ReportsErrorsAndContinues(t *testing.T) {
	lines := capturePrintln(t)

	exec := &fakeExec{err: common.ErrUnauthenticated}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("get x\nfoobar\nquit\n"))

	assert.Equal(t, []string{"get"}, exec.calls)
	out := strings.Join(*lines, "\n")
	assert.Contains(t, out, "not logged in")
	assert.Contains(t, out, "Unknown command: foobar")
	assert.Contains(t, out, "Bye!")
}

func TestRunREPL_LastLineWithoutNewline(t *testing.T) {
	capturePrintln(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("queue"))
	assert.Equal(t, []string{"queue"}, exec.calls)
}

func TestRunREPL_StopsWhenContextDone(t *testing.T) {
	capturePrintln(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	runREPL(ctx, exec, func() string { return "" }, bufio.NewReader(strings.NewReader("queue\n")))
	assert.Empty(t, exec.calls)
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "usage: get <key>", describeError(usage("get <key>")))
	assert.Contains(t, describeError(common.ErrWrongCredentials), "wrong user or password")
	assert.Contains(t, describeError(fmt.Errorf("boom")), "error: boom")
}
