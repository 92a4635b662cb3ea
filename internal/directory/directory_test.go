package directory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/directory"
	"github.com/agent462/drover/internal/node"
)

const sampleInventory = `
nodes:
  web1.example.com:
    fqdn: web1.example.com
    ipaddress: 10.0.0.1
  web2.example.com:
    fqdn: web2.example.com
    cloud:
      provider: ec2
      public_hostname: ec2-1-2-3-4.compute-1.amazonaws.com
      public_ipv4: 1.2.3.4
  db1.example.com:
    ipaddress: 10.0.0.10
  orphan:
    platform: ubuntu
`

func TestParseInventory(t *testing.T) {
	inv, err := directory.ParseInventory([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}

	want := []string{"db1.example.com", "orphan", "web1.example.com", "web2.example.com"}
	got := inv.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseInventory_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "invalid yaml", data: "nodes: ["},
		{name: "no nodes", data: "nodes: {}"},
		{name: "empty document", data: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := directory.ParseInventory([]byte(tc.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(sampleInventory), 0644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}

	inv, err := directory.LoadInventory(path)
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if len(inv.Names()) != 4 {
		t.Errorf("nodes = %d, want 4", len(inv.Names()))
	}

	if _, err := directory.LoadInventory(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNode(t *testing.T) {
	inv, err := directory.ParseInventory([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}

	attrs, err := inv.Node(context.Background(), "web1.example.com")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if got := attrs.String("fqdn"); got != "web1.example.com" {
		t.Errorf("fqdn = %q", got)
	}

	if _, err := inv.Node(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestSearch(t *testing.T) {
	inv, err := directory.ParseInventory([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"web*", 2},
		{"*.example.com", 3},
		{"*", 4},
		{"nomatch*", 0},
	}
	for _, tc := range tests {
		got, err := inv.Search(context.Background(), tc.pattern)
		if err != nil {
			t.Fatalf("Search(%q): %v", tc.pattern, err)
		}
		if len(got) != tc.want {
			t.Errorf("Search(%q) = %d nodes, want %d", tc.pattern, len(got), tc.want)
		}
	}

	if _, err := inv.Search(context.Background(), "[bad"); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestTargets(t *testing.T) {
	inv, err := directory.ParseInventory([]byte(sampleInventory))
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}

	opts := config.NewOptions()
	opts.User = "deploy"

	targets, err := directory.Targets(context.Background(), inv, "*", opts)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	if len(targets) != 4 {
		t.Fatalf("targets = %d, want 4", len(targets))
	}

	// Sorted by node name for stable dispatch order.
	wantOrder := []string{"db1.example.com", "orphan", "web1.example.com", "web2.example.com"}
	for i, tgt := range targets {
		if tgt.Name != wantOrder[i] {
			t.Errorf("targets[%d].Name = %q, want %q", i, tgt.Name, wantOrder[i])
		}
		if tgt.User != "deploy" {
			t.Errorf("targets[%d].User = %q, want deploy", i, tgt.User)
		}
	}

	byName := make(map[string]node.Target, len(targets))
	for _, tgt := range targets {
		byName[tgt.Name] = tgt
	}

	// Cloud nodes prefer public hostname; plain nodes fall through fqdn
	// then ipaddress; nodes with neither stay unresolved.
	if got := byName["web2.example.com"].Address; got != "ec2-1-2-3-4.compute-1.amazonaws.com" {
		t.Errorf("web2 address = %q", got)
	}
	if got := byName["web1.example.com"].Address; got != "web1.example.com" {
		t.Errorf("web1 address = %q", got)
	}
	if got := byName["db1.example.com"].Address; got != "10.0.0.10" {
		t.Errorf("db1 address = %q", got)
	}
	if got := byName["orphan"].Address; got != node.UnknownAddress {
		t.Errorf("orphan address = %q, want unresolved", got)
	}
}
