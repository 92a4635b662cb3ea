// Package selector resolves @-prefixed target selectors in console and
// recipe input: @all, globs, and outcome selectors (@ok, @failed,
// @timeout, @differs) that reference the previous command's results.
package selector

import (
	"fmt"
	"path"
	"strings"

	"github.com/agent462/drover/internal/grouper"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
)

// State holds what selectors resolve against: the session's full target
// list and, after the first command, its grouped results.
type State struct {
	AllTargets []node.Target
	Grouped    *grouper.GroupedResults // nil until a command has run
}

// ParseInput splits an input line into a selector part and a command
// part. A line starting with @ carries a comma-separated list of
// @-prefixed tokens; the rest is the command. No @ prefix means @all.
func ParseInput(input string) (sel, command string) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "@") {
		return "", input
	}

	// Consume @-prefixed tokens separated by commas (with optional spaces).
	i := 0
	for {
		for i < len(input) && input[i] == ' ' {
			i++
		}
		if i >= len(input) || input[i] != '@' {
			break
		}
		for i < len(input) && input[i] != ' ' && input[i] != ',' {
			i++
		}

		// Look ahead past whitespace for a comma joining another selector.
		j := i
		for j < len(input) && input[j] == ' ' {
			j++
		}
		if j >= len(input) || input[j] != ',' {
			break
		}
		j++
		k := j
		for k < len(input) && input[k] == ' ' {
			k++
		}
		if k >= len(input) || input[k] != '@' {
			break
		}
		i = j
	}

	sel = strings.TrimSpace(input[:i])
	if i >= len(input) {
		return sel, ""
	}
	return sel, strings.TrimSpace(input[i:])
}

// Resolve maps a selector string to targets. An empty selector is @all.
// Combined selectors union their matches, first occurrence wins.
func Resolve(sel string, state *State) ([]node.Target, error) {
	if sel == "" || sel == "@all" {
		return state.AllTargets, nil
	}

	seen := make(map[string]bool)
	var out []node.Target

	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		targets, err := resolveSingle(part, state)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			key := runner.Key(t)
			if !seen[key] {
				seen[key] = true
				out = append(out, t)
			}
		}
	}

	return out, nil
}

func resolveSingle(sel string, state *State) ([]node.Target, error) {
	if !strings.HasPrefix(sel, "@") {
		return nil, fmt.Errorf("invalid selector %q: must start with @", sel)
	}
	name := sel[1:]

	switch name {
	case "all":
		return state.AllTargets, nil
	case "ok":
		return okTargets(state)
	case "differs":
		return differsTargets(state)
	case "failed":
		return failedTargets(state)
	case "timeout":
		return timeoutTargets(state)
	default:
		return matchTargets(name, state.AllTargets)
	}
}

// okTargets returns the norm group of the previous command.
func okTargets(state *State) ([]node.Target, error) {
	if state.Grouped == nil {
		return nil, fmt.Errorf("@ok: no previous command results")
	}
	for _, g := range state.Grouped.Groups {
		if g.IsNorm {
			return state.byKeys(g.Hosts), nil
		}
	}
	return nil, nil
}

// differsTargets returns hosts outside the norm group.
func differsTargets(state *State) ([]node.Target, error) {
	if state.Grouped == nil {
		return nil, fmt.Errorf("@differs: no previous command results")
	}
	var keys []string
	for _, g := range state.Grouped.Groups {
		if !g.IsNorm {
			keys = append(keys, g.Hosts...)
		}
	}
	return state.byKeys(keys), nil
}

// failedTargets returns every host in the previous failure partition,
// timeouts included.
func failedTargets(state *State) ([]node.Target, error) {
	if state.Grouped == nil {
		return nil, fmt.Errorf("@failed: no previous command results")
	}
	var keys []string
	for key := range state.Grouped.Failed {
		keys = append(keys, key)
	}
	for key := range state.Grouped.TimedOut {
		keys = append(keys, key)
	}
	return state.byKeys(keys), nil
}

// timeoutTargets returns hosts that timed out on the previous command.
func timeoutTargets(state *State) ([]node.Target, error) {
	if state.Grouped == nil {
		return nil, fmt.Errorf("@timeout: no previous command results")
	}
	var keys []string
	for key := range state.Grouped.TimedOut {
		keys = append(keys, key)
	}
	return state.byKeys(keys), nil
}

// matchTargets globs over node names and resolved addresses.
func matchTargets(pattern string, all []node.Target) ([]node.Target, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var matched []node.Target
	for _, t := range all {
		byName, _ := path.Match(pattern, t.Name)
		byAddr, _ := path.Match(pattern, t.Address)
		if byName || byAddr {
			matched = append(matched, t)
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("no targets match @%s", pattern)
	}
	return matched, nil
}

// byKeys maps response-set keys back to targets, preserving the
// session's target order.
func (s *State) byKeys(keys []string) []node.Target {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []node.Target
	for _, t := range s.AllTargets {
		if want[runner.Key(t)] {
			out = append(out, t)
		}
	}
	return out
}
