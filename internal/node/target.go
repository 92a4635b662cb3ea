package node

import (
	"time"

	"github.com/agent462/drover/internal/config"
)

// Target is a single remote host plus the credentials and timeout needed
// to reach it for one run. Immutable once constructed.
type Target struct {
	// Name is the node's directory-service name, kept for display.
	Name string

	// Address is the resolved address; UnknownAddress when resolution
	// produced nothing usable.
	Address string

	User     string
	Password string
	Keys     []string
	Port     int
	Timeout  time.Duration
	Sudo     bool
}

// NewTarget derives a per-run target from a node record's attribute tree
// and the run options. The options are copied; mutating them after the
// call does not affect the target.
func NewTarget(name string, attrs Attrs, opts config.Options) Target {
	opts.Normalize()
	return Target{
		Name:     name,
		Address:  ResolveAddress(attrs),
		User:     opts.User,
		Password: opts.Password,
		Keys:     append([]string(nil), opts.Keys...),
		Port:     opts.Port,
		Timeout:  opts.Timeout,
		Sudo:     opts.Sudo,
	}
}

// StaticTarget builds a target for a known address, bypassing attribute
// resolution. Used by the CLI when hosts are given directly.
func StaticTarget(addr string, opts config.Options) Target {
	opts.Normalize()
	return Target{
		Name:     addr,
		Address:  addr,
		User:     opts.User,
		Password: opts.Password,
		Keys:     append([]string(nil), opts.Keys...),
		Port:     opts.Port,
		Timeout:  opts.Timeout,
		Sudo:     opts.Sudo,
	}
}
