// Package bootstrap runs the ordered first-time-setup script on each
// target: render and transfer the agent configuration, transfer the
// validator key and encrypted secret when supplied, then invoke the
// agent. Steps execute sequentially within a target's connection; hosts
// run in parallel through the same worker pool as plain commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

// Step names carried by step failures, in execution order.
const (
	StepRenderConfig   = "render_config"
	StepKeyTransfer    = "key_transfer"
	StepSecretTransfer = "secret_transfer"
	StepRunAgent       = "run_agent"
)

// Default remote locations for the bootstrap payload.
const (
	DefaultConfigPath    = "/etc/drover/agent.conf"
	DefaultValidatorPath = "/etc/drover/validator.pem"
	DefaultSecretPath    = "/etc/drover/secret.key"
	DefaultRunCommand    = "drover-agent --once"
)

// StepError reports which bootstrap step failed for a host. Remaining
// steps for that host are skipped; other hosts are unaffected.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("bootstrap step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Context carries the ordered steps' shared payload. It is read-only
// across all per-host executions; every host applies the same context
// independently.
type Context struct {
	// ConfigTemplate is the agent configuration template source,
	// rendered per host (see template.go).
	ConfigTemplate string

	// Values are caller-supplied template values, shared by all hosts.
	Values map[string]any

	// ValidatorKey and Secret are transferred verbatim when non-empty.
	ValidatorKey []byte
	Secret       []byte

	// Remote destinations; zero values use the defaults above.
	ConfigPath    string
	ValidatorPath string
	SecretPath    string

	// RunCommand installs and runs the fleet agent. Subject to the
	// target's sudo rules like any other command.
	RunCommand string
}

// normalized returns a copy with defaults filled in.
func (c Context) normalized() Context {
	if c.ConfigPath == "" {
		c.ConfigPath = DefaultConfigPath
	}
	if c.ValidatorPath == "" {
		c.ValidatorPath = DefaultValidatorPath
	}
	if c.SecretPath == "" {
		c.SecretPath = DefaultSecretPath
	}
	if c.RunCommand == "" {
		c.RunCommand = DefaultRunCommand
	}
	return c
}

// Sequencer executes the bootstrap script across target sets.
type Sequencer struct {
	runner *runner.Runner
	bctx   Context
}

// New creates a Sequencer sharing the given runner's pool and transport.
func New(r *runner.Runner, bctx Context) *Sequencer {
	return &Sequencer{runner: r, bctx: bctx.normalized()}
}

// Run bootstraps every target and returns the completed ResponseSet.
// Each host's outcome is either a success payload from the agent run or
// a StepError naming the first step that failed.
func (s *Sequencer) Run(ctx context.Context, targets []node.Target) (*runner.ResponseSet, error) {
	return s.runner.RunOperation(ctx, targets, s.operation())
}

// operation returns the per-host unit of work. The shared Context is
// never mutated; per-host state stays on the stack.
func (s *Sequencer) operation() runner.Operation {
	return func(ctx context.Context, conn runner.Conn, target node.Target) (*runner.Result, error) {
		rendered, err := RenderConfig(s.bctx, target)
		if err != nil {
			return nil, &StepError{Step: StepRenderConfig, Err: err}
		}
		if err := conn.Upload(ctx, rendered, s.bctx.ConfigPath); err != nil {
			return nil, &StepError{Step: StepRenderConfig, Err: err}
		}

		if len(s.bctx.ValidatorKey) > 0 {
			if err := conn.Upload(ctx, s.bctx.ValidatorKey, s.bctx.ValidatorPath); err != nil {
				return nil, &StepError{Step: StepKeyTransfer, Err: err}
			}
		}

		if len(s.bctx.Secret) > 0 {
			if err := conn.Upload(ctx, s.bctx.Secret, s.bctx.SecretPath); err != nil {
				return nil, &StepError{Step: StepSecretTransfer, Err: err}
			}
		}

		stdout, stderr, exitCode, err := conn.Exec(ctx, s.bctx.RunCommand)
		if err != nil {
			return nil, &StepError{Step: StepRunAgent, Err: err}
		}
		if exitCode != 0 {
			return nil, &StepError{
				Step: StepRunAgent,
				Err:  &dssh.ExitError{Host: runner.Key(target), ExitCode: exitCode, Stderr: stderr},
			}
		}

		return &runner.Result{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}, nil
	}
}
