package runner

import (
	"sync"
	"time"

	"github.com/agent462/drover/internal/node"
)

// Result holds the success payload of one target's execution.
// Immutable once produced.
type Result struct {
	Target   node.Target
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Failure holds one target's failure reason.
type Failure struct {
	Target node.Target
	Err    error
}

// ResponseSet accumulates per-target outcomes, partitioned into successes
// and failures. Append-only during a run, safe under concurrent writers;
// readers after the run see a stable snapshot. Keys are resolved
// addresses (node names for targets that never resolved).
type ResponseSet struct {
	mu        sync.Mutex
	successes map[string]*Result
	failures  map[string]*Failure
}

// NewResponseSet returns an empty ResponseSet.
func NewResponseSet() *ResponseSet {
	return &ResponseSet{
		successes: make(map[string]*Result),
		failures:  make(map[string]*Failure),
	}
}

// Key returns the identity a target is recorded under.
func Key(t node.Target) string {
	if t.Address != node.UnknownAddress {
		return t.Address
	}
	return t.Name
}

// AddSuccess records a target's success payload.
func (rs *ResponseSet) AddSuccess(res *Result) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.successes[Key(res.Target)] = res
}

// AddFailure records a target's failure reason.
func (rs *ResponseSet) AddFailure(t node.Target, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures[Key(t)] = &Failure{Target: t, Err: err}
}

// Successes returns a copy of the success partition.
func (rs *ResponseSet) Successes() map[string]*Result {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]*Result, len(rs.successes))
	for k, v := range rs.successes {
		out[k] = v
	}
	return out
}

// Failures returns a copy of the failure partition.
func (rs *ResponseSet) Failures() map[string]*Failure {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]*Failure, len(rs.failures))
	for k, v := range rs.failures {
		out[k] = v
	}
	return out
}

// OK reports whether the failure partition is empty.
func (rs *ResponseSet) OK() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.failures) == 0
}

// Len returns the total number of recorded outcomes.
func (rs *ResponseSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.successes) + len(rs.failures)
}
