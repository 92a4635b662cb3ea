package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agent462/drover/internal/node"
	dssh "github.com/agent462/drover/internal/ssh"
)

// Conn is one live transport session bound to a single target. Owned
// exclusively by the worker that created it.
type Conn interface {
	Exec(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error)
	Upload(ctx context.Context, payload []byte, remotePath string) error
	Close() error
}

// Dialer opens a Conn to a target. The seam lets tests substitute the
// transport.
type Dialer interface {
	Dial(ctx context.Context, target node.Target) (Conn, error)
}

// ConnCloser is optionally implemented by Dialers whose connections are
// one-shot and must be closed by the pool after each operation. Dialers
// that cache connections (the interactive session) omit it and close on
// their own schedule.
type ConnCloser interface {
	CloseConn(conn Conn) error
}

// Operation is the per-target unit of work executed over an open Conn.
type Operation func(ctx context.Context, conn Conn, target node.Target) (*Result, error)

// Outcome is one target's terminal state: exactly one of Result or Err
// is set.
type Outcome struct {
	Target node.Target
	Result *Result
	Err    error
}

// Pool schedules targets onto a bounded set of concurrently active
// connections. The bound is a strict ceiling: the n+1-th connection is
// never opened before one of the first n has terminated.
type Pool struct {
	dialer      Dialer
	concurrency int
	log         *slog.Logger
}

// NewPool creates a Pool. Concurrency must be positive.
func NewPool(dialer Dialer, concurrency int, log *slog.Logger) *Pool {
	return &Pool{
		dialer:      dialer,
		concurrency: concurrency,
		log:         log,
	}
}

// Run fans op out across targets and streams each outcome as its target
// terminates (success, failure, or timeout). The channel is closed once
// every target has terminated. Completion order is nondeterministic.
func (p *Pool) Run(ctx context.Context, targets []node.Target, op Operation) <-chan Outcome {
	out := make(chan Outcome)
	sem := semaphore.NewWeighted(int64(p.concurrency))

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(t node.Target) {
			defer wg.Done()

			// A slot must free up before this target may start.
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- Outcome{Target: t, Err: err}
				return
			}
			defer sem.Release(1)

			out <- p.runOne(ctx, t, op)
		}(target)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// runOne executes op against a single target under its timeout, which
// covers the handshake as well as the operation. The connection is
// closed on every exit path.
func (p *Pool) runOne(ctx context.Context, t node.Target, op Operation) Outcome {
	hostCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		hostCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	start := time.Now()

	conn, err := p.dialer.Dial(hostCtx, t)
	if err != nil {
		return Outcome{Target: t, Err: p.tagTimeout(hostCtx, t, err)}
	}
	if closer, ok := p.dialer.(ConnCloser); ok {
		defer closer.CloseConn(conn)
	}

	res, err := op(hostCtx, conn, t)
	if err != nil {
		return Outcome{Target: t, Err: p.tagTimeout(hostCtx, t, err)}
	}

	res.Target = t
	res.Duration = time.Since(start)
	return Outcome{Target: t, Result: res}
}

// tagTimeout converts a deadline expiry on the per-target context into
// the timeout classification. Other errors pass through unchanged.
func (p *Pool) tagTimeout(hostCtx context.Context, t node.Target, err error) error {
	if hostCtx.Err() == context.DeadlineExceeded {
		p.log.Warn("target timed out", "host", Key(t), "timeout", t.Timeout.String())
		return &dssh.TimeoutError{Host: Key(t), After: t.Timeout}
	}
	return err
}
