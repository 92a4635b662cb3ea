package bootstrap_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agent462/drover/internal/bootstrap"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
)

// fakeConn records uploads and commands per host.
type fakeConn struct {
	host string
	rec  *recorder

	uploadErr map[string]error // remote path -> error
	exitCode  int
	execErr   error
}

func (c *fakeConn) Exec(ctx context.Context, command string) ([]byte, []byte, int, error) {
	c.rec.add(c.host, "exec:"+command)
	if c.execErr != nil {
		return nil, nil, -1, c.execErr
	}
	return []byte("agent ok\n"), nil, c.exitCode, nil
}

func (c *fakeConn) Upload(ctx context.Context, payload []byte, remotePath string) error {
	c.rec.add(c.host, "upload:"+remotePath)
	if err, ok := c.uploadErr[remotePath]; ok {
		return err
	}
	c.rec.store(c.host, remotePath, payload)
	return nil
}

func (c *fakeConn) Close() error { return nil }

// recorder captures per-host step order and uploaded payloads.
type recorder struct {
	mu       sync.Mutex
	steps    map[string][]string
	payloads map[string]map[string][]byte
}

func newRecorder() *recorder {
	return &recorder{
		steps:    make(map[string][]string),
		payloads: make(map[string]map[string][]byte),
	}
}

func (r *recorder) add(host, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[host] = append(r.steps[host], step)
}

func (r *recorder) store(host, path string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payloads[host] == nil {
		r.payloads[host] = make(map[string][]byte)
	}
	r.payloads[host][path] = append([]byte(nil), payload...)
}

func (r *recorder) stepsFor(host string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps[host]...)
}

func (r *recorder) payload(host, path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[host][path]
}

type fakeDialer struct {
	rec   *recorder
	conns map[string]*fakeConn // host -> preconfigured conn, optional
}

func (d *fakeDialer) Dial(ctx context.Context, target node.Target) (runner.Conn, error) {
	if c, ok := d.conns[target.Address]; ok {
		c.host = target.Address
		c.rec = d.rec
		return c, nil
	}
	return &fakeConn{host: target.Address, rec: d.rec}, nil
}

func target(addr string) node.Target {
	return node.Target{Name: addr, Address: addr}
}

func TestSequencer_StepOrder(t *testing.T) {
	rec := newRecorder()
	r := runner.New(runner.WithDialer(&fakeDialer{rec: rec}))

	seq := bootstrap.New(r, bootstrap.Context{
		ConfigTemplate: "node {{.NodeName}}\n",
		ValidatorKey:   []byte("validator pem"),
		Secret:         []byte("secret bytes"),
	})

	set, err := seq.Run(context.Background(), []node.Target{target("web1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !set.OK() {
		t.Fatalf("expected all hosts to succeed, failures: %v", set.Failures())
	}

	want := []string{
		"upload:" + bootstrap.DefaultConfigPath,
		"upload:" + bootstrap.DefaultValidatorPath,
		"upload:" + bootstrap.DefaultSecretPath,
		"exec:" + bootstrap.DefaultRunCommand,
	}
	got := rec.stepsFor("web1")
	if len(got) != len(want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, got[i], want[i])
		}
	}

	conf := rec.payload("web1", bootstrap.DefaultConfigPath)
	if string(conf) != "node web1\n" {
		t.Errorf("rendered config = %q, want %q", conf, "node web1\n")
	}
}

func TestSequencer_OptionalTransfersSkipped(t *testing.T) {
	rec := newRecorder()
	r := runner.New(runner.WithDialer(&fakeDialer{rec: rec}))

	seq := bootstrap.New(r, bootstrap.Context{ConfigTemplate: "minimal\n"})

	set, err := seq.Run(context.Background(), []node.Target{target("web1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !set.OK() {
		t.Fatalf("failures: %v", set.Failures())
	}

	got := rec.stepsFor("web1")
	if len(got) != 2 {
		t.Fatalf("steps = %v, want config upload + exec only", got)
	}
	for _, step := range got {
		if strings.Contains(step, "validator") || strings.Contains(step, "secret") {
			t.Errorf("unexpected optional transfer step %q", step)
		}
	}
}

func TestSequencer_StepFailureSkipsRest(t *testing.T) {
	rec := newRecorder()
	uploadErr := errors.New("disk full")
	dialer := &fakeDialer{
		rec: rec,
		conns: map[string]*fakeConn{
			"web1": {uploadErr: map[string]error{bootstrap.DefaultValidatorPath: uploadErr}},
		},
	}
	r := runner.New(runner.WithDialer(dialer))

	seq := bootstrap.New(r, bootstrap.Context{
		ConfigTemplate: "conf\n",
		ValidatorKey:   []byte("pem"),
		Secret:         []byte("secret"),
	})

	set, err := seq.Run(context.Background(), []node.Target{target("web1"), target("web2")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	failures := set.Failures()
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}

	var stepErr *bootstrap.StepError
	if !errors.As(failures["web1"].Err, &stepErr) {
		t.Fatalf("expected StepError, got %T", failures["web1"].Err)
	}
	if stepErr.Step != bootstrap.StepKeyTransfer {
		t.Errorf("failed step = %q, want %q", stepErr.Step, bootstrap.StepKeyTransfer)
	}
	if !errors.Is(stepErr, uploadErr) {
		t.Error("StepError should unwrap to the upload error")
	}

	// Secret transfer and agent run must not have happened on web1.
	for _, step := range rec.stepsFor("web1") {
		if strings.Contains(step, "secret") || strings.HasPrefix(step, "exec:") {
			t.Errorf("step %q ran after key transfer failed", step)
		}
	}

	// web2 is unaffected.
	if _, ok := set.Successes()["web2"]; !ok {
		t.Error("web2 should have bootstrapped successfully")
	}
}

func TestSequencer_AgentExitFailure(t *testing.T) {
	rec := newRecorder()
	dialer := &fakeDialer{
		rec:   rec,
		conns: map[string]*fakeConn{"web1": {exitCode: 1}},
	}
	r := runner.New(runner.WithDialer(dialer))

	seq := bootstrap.New(r, bootstrap.Context{ConfigTemplate: "conf\n"})

	set, err := seq.Run(context.Background(), []node.Target{target("web1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	failures := set.Failures()
	var stepErr *bootstrap.StepError
	if !errors.As(failures["web1"].Err, &stepErr) {
		t.Fatalf("expected StepError, got %T", failures["web1"].Err)
	}
	if stepErr.Step != bootstrap.StepRunAgent {
		t.Errorf("failed step = %q, want %q", stepErr.Step, bootstrap.StepRunAgent)
	}
}

func TestSequencer_BadTemplateFailsBeforeUpload(t *testing.T) {
	rec := newRecorder()
	r := runner.New(runner.WithDialer(&fakeDialer{rec: rec}))

	seq := bootstrap.New(r, bootstrap.Context{ConfigTemplate: "{{.Missing}"})

	set, err := seq.Run(context.Background(), []node.Target{target("web1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var stepErr *bootstrap.StepError
	if !errors.As(set.Failures()["web1"].Err, &stepErr) {
		t.Fatalf("expected StepError, got %T", set.Failures()["web1"].Err)
	}
	if stepErr.Step != bootstrap.StepRenderConfig {
		t.Errorf("failed step = %q, want %q", stepErr.Step, bootstrap.StepRenderConfig)
	}
	if len(rec.stepsFor("web1")) != 0 {
		t.Errorf("no steps should run after a template parse failure, got %v", rec.stepsFor("web1"))
	}
}

func TestRenderConfig(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]any
		want     string
		wantErr  bool
	}{
		{
			name:     "node fields",
			template: "name={{.NodeName}} addr={{.Address}} user={{.User}}\n",
			want:     "name=web1 addr=10.0.0.1 user=deploy\n",
		},
		{
			name:     "caller values",
			template: "env={{.Values.env}}\n",
			values:   map[string]any{"env": "staging"},
			want:     "env=staging\n",
		},
		{
			name:     "missing value errors",
			template: "{{.Values.nope}}\n",
			values:   map[string]any{},
			wantErr:  true,
		},
		{
			name:     "parse error",
			template: "{{.NodeName",
			wantErr:  true,
		},
	}

	tgt := node.Target{Name: "web1", Address: "10.0.0.1", User: "deploy"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bootstrap.RenderConfig(bootstrap.Context{
				ConfigTemplate: tc.template,
				Values:         tc.values,
			}, tgt)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderConfig: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("rendered = %q, want %q", got, tc.want)
			}
		})
	}
}
