package exec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agent462/drover/internal/grouper"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

func sampleSet() *runner.ResponseSet {
	set := runner.NewResponseSet()
	set.AddSuccess(&runner.Result{
		Target:   node.Target{Name: "web1", Address: "web1"},
		Stdout:   []byte("uptime 4 days\n"),
		Duration: 120 * time.Millisecond,
	})
	set.AddSuccess(&runner.Result{
		Target:   node.Target{Name: "web2", Address: "web2"},
		Stdout:   []byte("uptime 9 days\n"),
		Stderr:   []byte("warning: clock skew\n"),
		Duration: 80 * time.Millisecond,
	})
	set.AddFailure(node.Target{Name: "db1", Address: "db1"},
		&dssh.ExitError{Host: "db1", ExitCode: 2, Stderr: []byte("no such file")})
	set.AddFailure(node.Target{Name: "db2", Address: "db2"},
		&dssh.TimeoutError{Host: "db2", After: 5 * time.Second})
	return set
}

func TestFormat(t *testing.T) {
	f := NewFormatter(false, false, false)
	out := f.Format(sampleSet())

	for _, want := range []string{
		"web1 ok",
		"uptime 4 days",
		"stderr: warning: clock skew",
		"db1 exec",
		"db2 timeout",
		"2 succeeded, 2 failed, 1 timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Successes are listed before failures.
	if strings.Index(out, "web1") > strings.Index(out, "db1") {
		t.Error("successes should precede failures")
	}
}

func TestFormat_ErrorsOnly(t *testing.T) {
	f := NewFormatter(false, true, false)
	out := f.Format(sampleSet())

	if strings.Contains(out, "uptime") {
		t.Errorf("errors-only output includes success detail:\n%s", out)
	}
	if !strings.Contains(out, "db1") || !strings.Contains(out, "db2") {
		t.Errorf("errors-only output missing failures:\n%s", out)
	}
	if !strings.Contains(out, "2 succeeded") {
		t.Errorf("summary should still count successes:\n%s", out)
	}
}

func TestFormat_Color(t *testing.T) {
	plain := NewFormatter(false, false, false).Format(sampleSet())
	if strings.Contains(plain, "\033[") {
		t.Error("color disabled but output has escape codes")
	}

	colored := NewFormatter(false, false, true).Format(sampleSet())
	if !strings.Contains(colored, colorGreen) || !strings.Contains(colored, colorRed) {
		t.Error("color enabled but output has no escape codes")
	}
}

func TestFormat_AllSucceeded(t *testing.T) {
	set := runner.NewResponseSet()
	set.AddSuccess(&runner.Result{Target: node.Target{Name: "web1", Address: "web1"}})

	out := NewFormatter(false, false, false).Format(set)
	if !strings.Contains(out, "1 succeeded") {
		t.Errorf("summary = %q", out)
	}
	if strings.Contains(out, "failed") || strings.Contains(out, "timeout") {
		t.Errorf("summary should omit zero counts:\n%s", out)
	}
}

func TestFormatGrouped(t *testing.T) {
	set := runner.NewResponseSet()
	for _, host := range []string{"web1", "web2", "web3"} {
		set.AddSuccess(&runner.Result{
			Target: node.Target{Name: host, Address: host},
			Stdout: []byte("agent active\n"),
		})
	}
	set.AddSuccess(&runner.Result{
		Target: node.Target{Name: "web4", Address: "web4"},
		Stdout: []byte("agent dead\n"),
	})
	set.AddFailure(node.Target{Name: "db2", Address: "db2"},
		&dssh.TimeoutError{Host: "db2", After: 5 * time.Second})

	out := NewFormatter(false, false, false).FormatGrouped(grouper.Group(set))

	for _, want := range []string{
		"web1, web2, web3 ok (3 hosts identical)",
		"agent active",
		"web4 differs (1 host)",
		"+agent dead",
		"db2 timeout",
		"4 succeeded, 1 failed, 1 timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("grouped output missing %q:\n%s", want, out)
		}
	}

	// The norm group comes first, outliers next, failures last.
	if !(strings.Index(out, "web1") < strings.Index(out, "web4") &&
		strings.Index(out, "web4") < strings.Index(out, "db2")) {
		t.Errorf("grouped output out of order:\n%s", out)
	}
}

func TestFormatGrouped_ErrorsOnly(t *testing.T) {
	set := runner.NewResponseSet()
	set.AddSuccess(&runner.Result{
		Target: node.Target{Name: "web1", Address: "web1"},
		Stdout: []byte("all good\n"),
	})

	out := NewFormatter(false, true, false).FormatGrouped(grouper.Group(set))
	if strings.Contains(out, "all good") {
		t.Errorf("errors-only grouped output includes norm stdout:\n%s", out)
	}
	if !strings.Contains(out, "web1 ok (1 host identical)") {
		t.Errorf("grouped header missing:\n%s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	data, err := NewFormatter(true, false, false).FormatJSON(sampleSet())
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var decoded struct {
		OK        bool `json:"ok"`
		Successes map[string]struct {
			Stdout   string `json:"stdout"`
			ExitCode int    `json:"exit_code"`
		} `json:"successes"`
		Failures map[string]struct {
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"failures"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.OK {
		t.Error("ok = true, want false")
	}
	if len(decoded.Successes) != 2 || len(decoded.Failures) != 2 {
		t.Fatalf("partitions = %d/%d, want 2/2", len(decoded.Successes), len(decoded.Failures))
	}
	if decoded.Successes["web1"].Stdout != "uptime 4 days\n" {
		t.Errorf("web1 stdout = %q", decoded.Successes["web1"].Stdout)
	}
	if decoded.Failures["db1"].Kind != "exec" {
		t.Errorf("db1 kind = %q, want exec", decoded.Failures["db1"].Kind)
	}
	if decoded.Failures["db2"].Kind != "timeout" {
		t.Errorf("db2 kind = %q, want timeout", decoded.Failures["db2"].Kind)
	}
}
