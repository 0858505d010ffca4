package browse

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pinnedref/pinnedref/pkg/logger"
)

// syncBuffer lets the debounced count and the command loop write safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestShellCommands(t *testing.T) {
	out := &syncBuffer{}
	sh := NewShell(out)
	s := NewSession(newLibrary(t), OnCount(sh.Count))
	defer s.Close()

	input := strings.Join([]string{
		"/s dog",
		"/list",
		"/open 3",
		"/open 42",
		"/open x",
		"/back",
		"/help",
		"/quit",
		"/s cat",
	}, "\n")
	if err := sh.Run(context.Background(), s, strings.NewReader(input)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"3 articles\n",
		`2 articles matching "dog"`,
		"HIGHLIGHTS",
		"Dogs\ndogs.example",
		"no article with id 42",
		`article id "x" is not an integer`,
		"commands:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, `matching "cat"`) {
		t.Error("command after /quit was executed")
	}
	if st := s.State(); st.View != ViewMultiArticle || st.Query != "dog" {
		t.Errorf("final state = %s %q", st.View, st.Query)
	}
}

func TestShellFlushesCountAtEndOfInput(t *testing.T) {
	out := &syncBuffer{}
	sh := NewShell(out)
	s := NewSession(newLibrary(t), WithDebounceDelay(time.Hour), OnCount(sh.Count))
	defer s.Close()

	if err := sh.Run(context.Background(), s, strings.NewReader("/q ca\n/q cat\n")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), `"cat": 2 matches`) {
		t.Errorf("no count printed:\n%s", out.String())
	}
	if strings.Contains(out.String(), `"ca":`) {
		t.Error("superseded input produced a count")
	}
}

func TestShellQuitDropsPendingCount(t *testing.T) {
	out := &syncBuffer{}
	sh := NewShell(out)
	s := NewSession(newLibrary(t), WithDebounceDelay(time.Hour), OnCount(sh.Count))

	if err := sh.Run(context.Background(), s, strings.NewReader("/q cat\n/quit\n")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for s.debouncer.Pending() {
		if time.Now().After(deadline) {
			t.Fatal("pending count survived /quit")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Type("dog")
	if s.debouncer.Pending() {
		t.Error("Type after the shell exited scheduled a count")
	}
	if strings.Contains(out.String(), "matches") {
		t.Errorf("dropped count was printed:\n%s", out.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestShellLogsRenderErrors(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var logs syncBuffer
	slog.SetDefault(logger.New(&logs, "info", "text"))

	sh := NewShell(failingWriter{})
	s := NewSession(newLibrary(t))
	defer s.Close()
	if err := sh.Run(context.Background(), s, strings.NewReader("/list\n")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := logs.String()
	if strings.Count(got, "render failed") != 2 || !strings.Contains(got, "closed pipe") {
		t.Errorf("render errors not logged:\n%s", got)
	}
}
