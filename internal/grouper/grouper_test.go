package grouper

import (
	"strings"
	"testing"
	"time"

	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

func success(host, stdout string) *runner.Result {
	return &runner.Result{
		Target: node.Target{Name: host, Address: host},
		Stdout: []byte(stdout),
	}
}

func TestGroup_NormAndOutlier(t *testing.T) {
	set := runner.NewResponseSet()
	set.AddSuccess(success("web1", "Debian 12\n"))
	set.AddSuccess(success("web2", "Debian 12\n"))
	set.AddSuccess(success("web3", "Debian 11\n"))

	gr := Group(set)
	if len(gr.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(gr.Groups))
	}

	norm := gr.Groups[0]
	if !norm.IsNorm {
		t.Fatal("first group should be the norm")
	}
	if len(norm.Hosts) != 2 {
		t.Errorf("norm hosts = %v, want 2", norm.Hosts)
	}
	if norm.Diff != "" {
		t.Error("norm should have no diff")
	}

	outlier := gr.Groups[1]
	if outlier.IsNorm {
		t.Fatal("second group should not be the norm")
	}
	if len(outlier.Hosts) != 1 || outlier.Hosts[0] != "web3" {
		t.Errorf("outlier hosts = %v, want [web3]", outlier.Hosts)
	}
	if !strings.Contains(outlier.Diff, "-Debian 12") || !strings.Contains(outlier.Diff, "+Debian 11") {
		t.Errorf("diff = %q", outlier.Diff)
	}
}

func TestGroup_AllIdentical(t *testing.T) {
	set := runner.NewResponseSet()
	for _, h := range []string{"a", "b", "c"} {
		set.AddSuccess(success(h, "same\n"))
	}

	gr := Group(set)
	if len(gr.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(gr.Groups))
	}
	if !gr.Groups[0].IsNorm || len(gr.Groups[0].Hosts) != 3 {
		t.Errorf("group = %+v", gr.Groups[0])
	}
}

func TestGroup_TieIsDeterministic(t *testing.T) {
	set := runner.NewResponseSet()
	set.AddSuccess(success("a", "one\n"))
	set.AddSuccess(success("b", "two\n"))

	// First-seen in key order wins the tie.
	for i := 0; i < 5; i++ {
		gr := Group(set)
		if len(gr.Groups) != 2 {
			t.Fatalf("groups = %d, want 2", len(gr.Groups))
		}
		if gr.Groups[0].Hosts[0] != "a" {
			t.Fatalf("norm = %v, want [a]", gr.Groups[0].Hosts)
		}
	}
}

func TestGroup_SplitsTimeouts(t *testing.T) {
	set := runner.NewResponseSet()
	set.AddSuccess(success("ok1", "fine\n"))
	set.AddFailure(node.Target{Name: "slow", Address: "slow"},
		&dssh.TimeoutError{Host: "slow", After: 5 * time.Second})
	set.AddFailure(node.Target{Name: "ghost", Address: node.UnknownAddress},
		&dssh.UnreachableError{Name: "ghost"})

	gr := Group(set)
	if len(gr.TimedOut) != 1 {
		t.Errorf("timed out = %d, want 1", len(gr.TimedOut))
	}
	if _, ok := gr.TimedOut["slow"]; !ok {
		t.Error("slow should be in the timeout partition")
	}
	if len(gr.Failed) != 1 {
		t.Errorf("failed = %d, want 1", len(gr.Failed))
	}
	if _, ok := gr.Failed["ghost"]; !ok {
		t.Error("ghost should be in the failed partition")
	}
}

func TestGroup_Empty(t *testing.T) {
	gr := Group(runner.NewResponseSet())
	if len(gr.Groups) != 0 || len(gr.Failed) != 0 || len(gr.TimedOut) != 0 {
		t.Errorf("empty set should group to nothing: %+v", gr)
	}
}

func TestUnifiedDiff(t *testing.T) {
	diff := unifiedDiff("a\nb\nc\n", "a\nx\nc\n")
	for _, want := range []string{"--- norm", "+++ outlier", " a", "-b", "+x", " c"} {
		if !strings.Contains(diff, want+"\n") {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
}

func TestUnifiedDiff_LargeInputFallsBack(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < maxDiffLines+1; i++ {
		a.WriteString("line\n")
		b.WriteString("line\n")
	}
	b.WriteString("extra\n")

	diff := unifiedDiff(a.String(), b.String())
	// Past the cap there is no LCS pass, so common lines appear as
	// removal plus addition.
	if strings.Contains(diff, "\n line\n") {
		t.Error("large diff should not contain context lines")
	}
	if !strings.Contains(diff, "+extra\n") {
		t.Errorf("diff missing added line:\n%s", diff)
	}
}
