// Package parser extracts structured fields from per-host command
// output, turning a wall of stdout into a fleet-wide table.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agent462/drover/internal/runner"
)

// Rule describes one field extraction: a regex with a single capture
// group, or a 1-based whitespace column (first data line after the
// header).
type Rule struct {
	Field   string
	Pattern string
	Column  int
}

// FieldValue is one extracted field and its value. "-" marks a miss.
type FieldValue struct {
	Field string
	Value string
}

// HostParsed holds the extraction results for a single host.
type HostParsed struct {
	Host   string
	Fields []FieldValue
	Err    error
}

// rule is a compiled extract rule.
type rule struct {
	field  string
	re     *regexp.Regexp // nil in column mode
	column int            // 0 in regex mode
}

// OutputParser extracts fields from command output.
type OutputParser struct {
	rules []rule
}

// ParseRules compiles raw CLI rule specs. Each spec is
// "field=/pattern/" for regex extraction or "field=col:N" for a column.
func ParseRules(specs []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		field, expr, ok := strings.Cut(spec, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid extract spec %q: want field=/pattern/ or field=col:N", spec)
		}

		switch {
		case strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") && len(expr) > 1:
			rules = append(rules, Rule{Field: field, Pattern: expr[1 : len(expr)-1]})
		case strings.HasPrefix(expr, "col:"):
			col, err := strconv.Atoi(strings.TrimPrefix(expr, "col:"))
			if err != nil || col < 1 {
				return nil, fmt.Errorf("invalid column in %q: want col:N with N >= 1", spec)
			}
			rules = append(rules, Rule{Field: field, Column: col})
		default:
			return nil, fmt.Errorf("invalid extract spec %q: want field=/pattern/ or field=col:N", spec)
		}
	}
	return rules, nil
}

// New compiles rules into an OutputParser.
func New(rules []Rule) (*OutputParser, error) {
	compiled := make([]rule, 0, len(rules))
	for _, r := range rules {
		cr := rule{field: r.Field}
		switch {
		case r.Pattern != "":
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid regex for field %q: %w", r.Field, err)
			}
			cr.re = re
		case r.Column > 0:
			cr.column = r.Column
		default:
			return nil, fmt.Errorf("rule for field %q must have a pattern or column", r.Field)
		}
		compiled = append(compiled, cr)
	}
	return &OutputParser{rules: compiled}, nil
}

// Parse extracts fields from a single host's stdout.
func (p *OutputParser) Parse(host string, stdout []byte) *HostParsed {
	hp := &HostParsed{
		Host:   host,
		Fields: make([]FieldValue, 0, len(p.rules)),
	}

	text := string(stdout)
	for _, r := range p.rules {
		value := "-"
		if r.re != nil {
			if m := r.re.FindStringSubmatch(text); len(m) >= 2 {
				value = m[1]
			}
		} else if r.column > 0 {
			value = extractColumn(text, r.column)
		}
		hp.Fields = append(hp.Fields, FieldValue{Field: r.field, Value: value})
	}
	return hp
}

// ParseSet extracts fields from every success in a completed set,
// appending failed hosts with their error. Rows come out in key order.
func (p *OutputParser) ParseSet(set *runner.ResponseSet) []*HostParsed {
	successes := set.Successes()
	failures := set.Failures()

	keys := make([]string, 0, len(successes)+len(failures))
	for key := range successes {
		keys = append(keys, key)
	}
	for key := range failures {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parsed := make([]*HostParsed, 0, len(keys))
	for _, key := range keys {
		if res, ok := successes[key]; ok {
			parsed = append(parsed, p.Parse(key, res.Stdout))
			continue
		}
		hp := p.Parse(key, nil)
		hp.Err = failures[key].Err
		parsed = append(parsed, hp)
	}
	return parsed
}

// extractColumn returns the given 1-based column from the first
// non-empty data line, skipping the first line as a header.
func extractColumn(text string, col int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if col <= len(fields) {
			return fields[col-1]
		}
		return "-"
	}
	return "-"
}

// FormatTable renders parsed results as an aligned ASCII table. Failed
// hosts show their error in the first field column.
func FormatTable(parsed []*HostParsed, color bool) string {
	if len(parsed) == 0 {
		return ""
	}

	headers := []string{"HOST"}
	for _, fv := range parsed[0].Fields {
		headers = append(headers, strings.ToUpper(fv.Field))
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, hp := range parsed {
		if len(hp.Host) > widths[0] {
			widths[0] = len(hp.Host)
		}
		for i, fv := range hp.Fields {
			if i+1 < len(widths) && len(fv.Value) > widths[i+1] {
				widths[i+1] = len(fv.Value)
			}
		}
	}

	formatRow := func(values []string) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%-*s", widths[i], v)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var sb strings.Builder
	headerLine := formatRow(headers)
	if color {
		sb.WriteString("\033[1;36m")
		sb.WriteString(headerLine)
		sb.WriteString("\033[0m")
	} else {
		sb.WriteString(headerLine)
	}
	sb.WriteString("\n")

	dashes := make([]string, len(widths))
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	sb.WriteString(strings.Join(dashes, "  "))
	sb.WriteString("\n")

	for _, hp := range parsed {
		values := []string{hp.Host}
		if hp.Err != nil {
			values = append(values, "error: "+hp.Err.Error())
		} else {
			for _, fv := range hp.Fields {
				values = append(values, fv.Value)
			}
		}
		sb.WriteString(formatRow(values))
		sb.WriteString("\n")
	}

	return sb.String()
}
