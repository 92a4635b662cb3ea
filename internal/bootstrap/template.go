package bootstrap

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/agent462/drover/internal/node"
)

// templateData is what a config template sees: the host being
// bootstrapped plus the caller's shared values.
type templateData struct {
	NodeName string
	Address  string
	User     string
	Values   map[string]any
}

// RenderConfig renders the agent configuration for one host. The shared
// Context is read-only; each host gets its own rendering.
func RenderConfig(bctx Context, target node.Target) ([]byte, error) {
	tmpl, err := template.New("agent.conf").Option("missingkey=error").Parse(bctx.ConfigTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	data := templateData{
		NodeName: target.Name,
		Address:  target.Address,
		User:     target.User,
		Values:   bctx.Values,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return buf.Bytes(), nil
}
