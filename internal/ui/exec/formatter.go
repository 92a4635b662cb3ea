// Package exec formats completed response sets for terminal display.
package exec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Formatter formats a ResponseSet for terminal display.
type Formatter struct {
	JSON       bool
	ErrorsOnly bool
	Color      bool
}

// NewFormatter creates a Formatter with the given options.
func NewFormatter(jsonOutput, errorsOnly, color bool) *Formatter {
	return &Formatter{
		JSON:       jsonOutput,
		ErrorsOnly: errorsOnly,
		Color:      color,
	}
}

// Format renders the set as a human-readable string: successes first,
// then failures grouped by classification, then a summary line.
func (f *Formatter) Format(set *runner.ResponseSet) string {
	var b strings.Builder

	successes := set.Successes()
	failures := set.Failures()

	if !f.ErrorsOnly {
		for _, key := range sortedKeys(successes) {
			f.writeSuccess(&b, key, successes[key])
		}
	}

	timedOut := 0
	for _, key := range sortedKeys(failures) {
		fail := failures[key]
		if dssh.Classify(fail.Err) == dssh.KindTimeout {
			timedOut++
		}
		f.writeFailure(&b, key, fail)
	}

	b.WriteString(f.summaryLine(len(successes), len(failures), timedOut))
	b.WriteString("\n")

	return b.String()
}

// FormatJSON serializes the set as a JSON object with success and
// failure partitions.
func (f *Formatter) FormatJSON(set *runner.ResponseSet) ([]byte, error) {
	type jsonSuccess struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exit_code"`
		Duration string `json:"duration"`
	}
	type jsonFailure struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	type jsonSet struct {
		OK        bool                   `json:"ok"`
		Successes map[string]jsonSuccess `json:"successes"`
		Failures  map[string]jsonFailure `json:"failures"`
	}

	out := jsonSet{
		OK:        set.OK(),
		Successes: make(map[string]jsonSuccess),
		Failures:  make(map[string]jsonFailure),
	}
	for key, res := range set.Successes() {
		out.Successes[key] = jsonSuccess{
			Stdout:   string(res.Stdout),
			Stderr:   string(res.Stderr),
			ExitCode: res.ExitCode,
			Duration: res.Duration.String(),
		}
	}
	for key, fail := range set.Failures() {
		out.Failures[key] = jsonFailure{
			Kind:  dssh.Classify(fail.Err).String(),
			Error: fail.Err.Error(),
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

func (f *Formatter) writeSuccess(b *strings.Builder, key string, res *runner.Result) {
	b.WriteString(f.colorize(" "+key, colorCyan))
	b.WriteString(f.colorize(" ok", colorGreen))
	b.WriteString(fmt.Sprintf(" (%s)\n", res.Duration.Round(time.Millisecond)))

	stdout := strings.TrimRight(string(res.Stdout), "\n")
	if stdout != "" {
		for _, line := range strings.Split(stdout, "\n") {
			b.WriteString("   ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	stderr := strings.TrimRight(string(res.Stderr), "\n")
	if stderr != "" {
		for _, line := range strings.Split(stderr, "\n") {
			b.WriteString("   ")
			b.WriteString(f.colorize("stderr: "+line, colorYellow))
			b.WriteString("\n")
		}
	}
}

func (f *Formatter) writeFailure(b *strings.Builder, key string, fail *runner.Failure) {
	kind := dssh.Classify(fail.Err)
	b.WriteString(f.colorize(" "+key, colorCyan))
	b.WriteString(f.colorize(fmt.Sprintf(" %s", kind), colorRed))
	b.WriteString("\n")
	b.WriteString("   ")
	b.WriteString(fail.Err.Error())
	b.WriteString("\n")
}

func (f *Formatter) summaryLine(succeeded, failed, timedOut int) string {
	parts := []string{
		fmt.Sprintf("%d succeeded", succeeded),
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if timedOut > 0 {
		parts = append(parts, fmt.Sprintf("%d timeout", timedOut))
	}
	return strings.Join(parts, ", ")
}

func (f *Formatter) colorize(text, color string) string {
	if !f.Color {
		return text
	}
	return color + text + colorReset
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
