// Package grouper collapses a completed response set into groups of
// hosts with identical output. The largest group is the norm; every
// other group carries a unified diff against it, so fleet-wide drift
// reads as "47 hosts identical, 3 differ" instead of 50 dumps.
package grouper

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

// OutputGroup is a set of hosts whose command output was identical.
type OutputGroup struct {
	Hosts    []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	IsNorm   bool   // largest group
	Diff     string // unified diff vs the norm; empty for the norm itself
}

// GroupedResults is the grouped view of one run: output groups over the
// success partition, failures split out by classification.
type GroupedResults struct {
	Groups   []OutputGroup
	Failed   map[string]*runner.Failure
	TimedOut map[string]*runner.Failure
}

// Group builds the grouped view of a completed set. Hosts are grouped
// by a hash over stdout, stderr, and exit code; the largest group is
// the norm (first-seen wins a tie, with hosts visited in key order so
// the choice is deterministic).
func Group(set *runner.ResponseSet) *GroupedResults {
	gr := &GroupedResults{
		Failed:   make(map[string]*runner.Failure),
		TimedOut: make(map[string]*runner.Failure),
	}

	for key, fail := range set.Failures() {
		if dssh.Classify(fail.Err) == dssh.KindTimeout {
			gr.TimedOut[key] = fail
		} else {
			gr.Failed[key] = fail
		}
	}

	successes := set.Successes()
	if len(successes) == 0 {
		return gr
	}

	keys := make([]string, 0, len(successes))
	for key := range successes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	type groupData struct {
		hosts    []string
		stdout   []byte
		stderr   []byte
		exitCode int
	}
	groups := make(map[string]*groupData)
	var hashOrder []string

	for _, key := range keys {
		res := successes[key]
		h := outputHash(res)
		g, ok := groups[h]
		if !ok {
			g = &groupData{
				stdout:   res.Stdout,
				stderr:   res.Stderr,
				exitCode: res.ExitCode,
			}
			groups[h] = g
			hashOrder = append(hashOrder, h)
		}
		g.hosts = append(g.hosts, key)
	}

	normHash := hashOrder[0]
	for _, h := range hashOrder[1:] {
		if len(groups[h].hosts) > len(groups[normHash].hosts) {
			normHash = h
		}
	}

	norm := groups[normHash]
	gr.Groups = append(gr.Groups, OutputGroup{
		Hosts:    norm.hosts,
		Stdout:   norm.stdout,
		Stderr:   norm.stderr,
		ExitCode: norm.exitCode,
		IsNorm:   true,
	})

	for _, h := range hashOrder {
		if h == normHash {
			continue
		}
		g := groups[h]
		gr.Groups = append(gr.Groups, OutputGroup{
			Hosts:    g.hosts,
			Stdout:   g.stdout,
			Stderr:   g.stderr,
			ExitCode: g.exitCode,
			Diff:     unifiedDiff(string(norm.stdout), string(g.stdout)),
		})
	}

	return gr
}

// outputHash keys a result by its visible outcome. A NUL separator
// between sections prevents stdout/stderr boundary collisions.
func outputHash(res *runner.Result) string {
	var buf []byte
	buf = append(buf, res.Stdout...)
	buf = append(buf, 0)
	buf = append(buf, res.Stderr...)
	buf = append(buf, 0)
	buf = append(buf, byte(res.ExitCode>>24), byte(res.ExitCode>>16), byte(res.ExitCode>>8), byte(res.ExitCode))
	h := sha256.Sum256(buf)
	return fmt.Sprintf("%x", h)
}
