// Package recipe runs named multi-step command sequences across the
// fleet. Steps execute in order; an @-selector prefix scopes a step to
// the previous step's outcome (@failed, @differs, a glob).
package recipe

import (
	"context"
	"fmt"

	"github.com/agent462/drover/internal/grouper"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
	"github.com/agent462/drover/internal/selector"
)

// Step is a single command, optionally scoped by a selector.
type Step struct {
	Selector string // "" means @all
	Command  string
}

// StepResult is one step's outcome across its resolved targets.
type StepResult struct {
	Step    Step
	Targets []node.Target
	Set     *runner.ResponseSet
	Grouped *grouper.GroupedResults
}

// ParseStep splits a raw step string into selector and command.
func ParseStep(raw string) Step {
	sel, cmd := selector.ParseInput(raw)
	return Step{Selector: sel, Command: cmd}
}

// Runner executes recipe steps sequentially over a shared session.
type Runner struct {
	runner  *runner.Runner
	targets []node.Target
}

// New creates a recipe Runner spanning the given targets.
func New(r *runner.Runner, targets []node.Target) *Runner {
	return &Runner{runner: r, targets: targets}
}

// Run executes steps in order. After each step the selector state is
// updated with its grouped results, so @failed or @differs in step N
// references step N-1's outcome. A step whose selector resolves to zero
// targets is skipped, not an error.
func (r *Runner) Run(ctx context.Context, steps []Step) ([]StepResult, error) {
	state := &selector.State{AllTargets: r.targets}

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("recipe cancelled: %w", err)
		}

		targets, err := selector.Resolve(step.Selector, state)
		if err != nil {
			return results, fmt.Errorf("step %q: %w", step.Command, err)
		}

		set, err := r.runner.Run(ctx, targets, step.Command)
		if err != nil {
			return results, fmt.Errorf("step %q: %w", step.Command, err)
		}
		grouped := grouper.Group(set)

		results = append(results, StepResult{
			Step:    step,
			Targets: targets,
			Set:     set,
			Grouped: grouped,
		})

		state.Grouped = grouped
	}

	return results, nil
}
