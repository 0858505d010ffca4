package browse

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pinnedref/pinnedref/internal/library"
	"github.com/pinnedref/pinnedref/pkg/errors"
)

const shellHelp = `commands:
  /q <text>    type a query; the match count follows once typing pauses
  /s <text>    search and show the matching articles (empty shows all)
  /list        show the article list
  /open <id>   read one article
  /back        return to the article view
  /quit        exit
`

// Shell drives a Session from line-oriented commands. Output from commands
// and from debounced counts is serialized.
type Shell struct {
	mu  sync.Mutex
	out io.Writer
}

func NewShell(out io.Writer) *Shell {
	return &Shell{out: out}
}

// Count prints a debounced match count. Pass it to NewSession with OnCount.
func (sh *Shell) Count(res library.Result) {
	if res.Empty {
		sh.printf("(empty query)\n")
		return
	}
	sh.printf("%q: %d matches\n", res.Query, res.Count)
}

// Run reads commands from in until /quit, end of input, or ctx is done. A
// count still waiting on the debounce delay is printed at end of input and
// dropped otherwise. The session's debouncer is closed when Run returns.
func (sh *Shell) Run(ctx context.Context, s *Session, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	go s.debouncer.Run(ctx)
	sh.render(s)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.debouncer.Flush()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := sh.exec(s, line); quit {
				return nil
			}
		}
	}
}

func (sh *Shell) exec(s *Session, line string) (quit bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
	case "/q":
		s.Type(arg)
	case "/s":
		s.Submit(arg)
		sh.render(s)
	case "/list":
		s.ShowList()
		sh.render(s)
	case "/open":
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			sh.printf("article id %q is not an integer\n", arg)
			return false
		}
		if _, err := s.Open(id); err != nil {
			if stderrors.Is(err, errors.ErrArticleNotFound) {
				sh.printf("no article with id %d\n", id)
				return false
			}
			sh.printf("error: %v\n", err)
			return false
		}
		sh.render(s)
	case "/back":
		s.Back()
		sh.render(s)
	case "/quit":
		return true
	default:
		sh.printf("%s", shellHelp)
	}
	return false
}

func (sh *Shell) render(s *Session) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := Render(sh.out, s.State()); err != nil {
		s.logger.Warn("render failed", "error", err)
	}
}

func (sh *Shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}
