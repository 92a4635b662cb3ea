// Package directory consumes the fleet directory service: a lookup
// returning node attribute trees. The engine never performs resource
// CRUD itself; it only consumes the record shape.
package directory

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/node"
)

// Service is the directory-service lookup the engine consumes.
type Service interface {
	// Node returns one node's attribute tree.
	Node(ctx context.Context, name string) (node.Attrs, error)

	// Search returns the attribute trees of all nodes whose name
	// matches the glob pattern, keyed by name.
	Search(ctx context.Context, pattern string) (map[string]node.Attrs, error)
}

// Inventory is a file-backed Service for CLI use and tests: a YAML
// document mapping node names to attribute trees.
type Inventory struct {
	nodes map[string]node.Attrs
}

// inventoryFile is the on-disk shape.
type inventoryFile struct {
	Nodes map[string]map[string]any `yaml:"nodes"`
}

// LoadInventory reads an inventory YAML file.
func LoadInventory(filePath string) (*Inventory, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory parses inventory YAML.
func ParseInventory(data []byte) (*Inventory, error) {
	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	if len(file.Nodes) == 0 {
		return nil, fmt.Errorf("inventory defines no nodes")
	}

	inv := &Inventory{nodes: make(map[string]node.Attrs, len(file.Nodes))}
	for name, attrs := range file.Nodes {
		inv.nodes[name] = node.Attrs(attrs)
	}
	return inv, nil
}

// Node implements Service.
func (inv *Inventory) Node(_ context.Context, name string) (node.Attrs, error) {
	attrs, ok := inv.nodes[name]
	if !ok {
		return nil, fmt.Errorf("node %q not found in inventory", name)
	}
	return attrs, nil
}

// Search implements Service using glob matching on node names.
func (inv *Inventory) Search(_ context.Context, pattern string) (map[string]node.Attrs, error) {
	out := make(map[string]node.Attrs)
	for name, attrs := range inv.nodes {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
		}
		if ok {
			out[name] = attrs
		}
	}
	return out, nil
}

// Names returns all node names, sorted.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.nodes))
	for name := range inv.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Targets resolves a search against svc into per-run targets, sorted by
// node name so dispatch order is stable (completion order is not).
func Targets(ctx context.Context, svc Service, pattern string, opts config.Options) ([]node.Target, error) {
	records, err := svc.Search(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("directory search %q: %w", pattern, err)
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]node.Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, node.NewTarget(name, records[name], opts))
	}
	return targets, nil
}
