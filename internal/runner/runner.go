// Package runner orchestrates multi-target command execution: fan-out
// through a bounded worker pool, fan-in into a ResponseSet. One attempt
// per target per run; every per-target failure is recovered at the
// target boundary and never aborts the rest of the run.
package runner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/logging"
	"github.com/agent462/drover/internal/node"
	dssh "github.com/agent462/drover/internal/ssh"
)

// ErrMissingSessionFunc reports a WithSession call without a callback.
// This is a programming-contract violation, surfaced before any
// connection is opened.
var ErrMissingSessionFunc = errors.New("runner: WithSession requires a callback")

// Runner executes operations across sets of targets.
type Runner struct {
	dialer      Dialer
	concurrency int
	log         *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithDialer substitutes the transport. Used by tests and the session
// variant.
func WithDialer(d Dialer) Option {
	return func(r *Runner) {
		if d != nil {
			r.dialer = d
		}
	}
}

// WithConcurrency sets the strict ceiling on simultaneously active
// connections.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger injects the logging collaborator. Logging never alters
// control flow.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithDialConfig sets transport options for the default SSH dialer.
func WithDialConfig(conf dssh.DialConfig) Option {
	return func(r *Runner) {
		r.dialer = &sshDialer{conf: conf}
	}
}

// New creates a Runner. Defaults: real SSH transport, concurrency 8,
// discard logger.
func New(opts ...Option) *Runner {
	r := &Runner{
		dialer:      &sshDialer{},
		concurrency: config.DefaultConcurrency,
		log:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if sd, ok := r.dialer.(*sshDialer); ok && sd.conf.Logger == nil {
		sd.conf.Logger = r.log
	}
	return r
}

// Run executes command on every target and returns the completed
// ResponseSet once all targets have terminated. Zero targets return an
// empty set immediately.
func (r *Runner) Run(ctx context.Context, targets []node.Target, command string) (*ResponseSet, error) {
	return r.RunOperation(ctx, targets, CommandOperation(command))
}

// RunOperation fans an arbitrary per-target operation out across
// targets. Each outcome is recorded exactly once.
func (r *Runner) RunOperation(ctx context.Context, targets []node.Target, op Operation) (*ResponseSet, error) {
	set := NewResponseSet()
	if len(targets) == 0 {
		return set, nil
	}

	pool := NewPool(r.dialer, r.concurrency, r.log)
	for outcome := range pool.Run(ctx, targets, op) {
		if outcome.Err != nil {
			set.AddFailure(outcome.Target, outcome.Err)
			continue
		}
		set.AddSuccess(outcome.Result)
	}
	return set, nil
}

// WithSession opens an interactive session over targets and hands it to
// fn. Connections are dialed lazily on the first command, kept open
// across commands, and always closed when fn returns. A nil fn fails
// immediately, before any connection is opened.
func (r *Runner) WithSession(ctx context.Context, targets []node.Target, fn func(*Session) error) error {
	if fn == nil {
		return ErrMissingSessionFunc
	}

	cache := &cachingDialer{inner: r.dialer, conns: make(map[string]Conn)}
	session := &Session{
		runner: &Runner{
			dialer:      cache,
			concurrency: r.concurrency,
			log:         r.log,
		},
		targets: targets,
	}
	defer cache.closeAll()

	return fn(session)
}

// Session is a live multi-target session. Each Run fans the command out
// over the session's open connections; hosts whose connection dropped
// are re-dialed on the next command.
type Session struct {
	runner  *Runner
	targets []node.Target
}

// Run executes command across the session's targets.
func (s *Session) Run(ctx context.Context, command string) (*ResponseSet, error) {
	return s.runner.Run(ctx, s.targets, command)
}

// RunTargets executes command across a subset of the session's targets,
// still reusing the session's open connections.
func (s *Session) RunTargets(ctx context.Context, targets []node.Target, command string) (*ResponseSet, error) {
	return s.runner.Run(ctx, targets, command)
}

// Targets returns the targets this session spans.
func (s *Session) Targets() []node.Target {
	return s.targets
}

// CommandOperation wraps a command string as a pool operation. A nonzero
// remote exit status is a failure (the operation completed but the
// command did not).
func CommandOperation(command string) Operation {
	return func(ctx context.Context, conn Conn, target node.Target) (*Result, error) {
		stdout, stderr, exitCode, err := conn.Exec(ctx, command)
		if err != nil {
			return nil, err
		}
		if exitCode != 0 {
			return nil, &dssh.ExitError{Host: Key(target), ExitCode: exitCode, Stderr: stderr}
		}
		return &Result{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
	}
}
