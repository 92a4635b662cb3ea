package exec

import (
	"fmt"
	"strings"

	"github.com/agent462/drover/internal/grouper"
)

// FormatGrouped renders the grouped view: the norm once, outliers with
// their diff against it, failures last.
func (f *Formatter) FormatGrouped(gr *grouper.GroupedResults) string {
	var b strings.Builder

	succeeded := 0
	for _, g := range gr.Groups {
		succeeded += len(g.Hosts)
		if g.IsNorm {
			f.writeNormGroup(&b, g)
		}
	}
	for _, g := range gr.Groups {
		if !g.IsNorm {
			f.writeOutlierGroup(&b, g)
		}
	}

	for _, key := range sortedKeys(gr.Failed) {
		f.writeFailure(&b, key, gr.Failed[key])
	}
	for _, key := range sortedKeys(gr.TimedOut) {
		f.writeFailure(&b, key, gr.TimedOut[key])
	}

	failed := len(gr.Failed) + len(gr.TimedOut)
	b.WriteString(f.summaryLine(succeeded, failed, len(gr.TimedOut)))
	b.WriteString("\n")

	return b.String()
}

func (f *Formatter) writeNormGroup(b *strings.Builder, g grouper.OutputGroup) {
	b.WriteString(f.colorize(" "+strings.Join(g.Hosts, ", "), colorCyan))
	b.WriteString(f.colorize(" ok", colorGreen))
	b.WriteString(fmt.Sprintf(" (%s identical)\n", hostCount(len(g.Hosts))))
	if f.ErrorsOnly {
		return
	}
	writeIndented(b, string(g.Stdout), "   ")
}

func (f *Formatter) writeOutlierGroup(b *strings.Builder, g grouper.OutputGroup) {
	b.WriteString(f.colorize(" "+strings.Join(g.Hosts, ", "), colorCyan))
	b.WriteString(f.colorize(" differs", colorYellow))
	b.WriteString(fmt.Sprintf(" (%s)\n", hostCount(len(g.Hosts))))
	writeIndented(b, g.Diff, "   ")
}

func writeIndented(b *strings.Builder, text, indent string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func hostCount(n int) string {
	if n == 1 {
		return "1 host"
	}
	return fmt.Sprintf("%d hosts", n)
}
