package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/grouper"
	"github.com/agent462/drover/internal/parser"
	execui "github.com/agent462/drover/internal/ui/exec"
)

func newExecCmd(flags *rootFlags) *cobra.Command {
	var (
		group    bool
		extracts []string
		builtin  string
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- <command>",
		Short: "Run a command across the targeted hosts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			var p *parser.OutputParser
			switch {
			case builtin != "":
				if p = parser.Builtin(builtin); p == nil {
					return fmt.Errorf("unknown builtin parser %q", builtin)
				}
			case len(extracts) > 0:
				rules, err := parser.ParseRules(extracts)
				if err != nil {
					return err
				}
				if p, err = parser.New(rules); err != nil {
					return err
				}
			}

			opts, err := buildOptions(flags)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(cmd.Context(), flags, opts)
			if err != nil {
				return err
			}

			r := buildRunner(flags, opts)
			set, err := r.Run(cmd.Context(), targets, command)
			if err != nil {
				return err
			}

			formatter := execui.NewFormatter(flags.jsonOutput, false, !flags.noColor)
			switch {
			case flags.jsonOutput:
				out, err := formatter.FormatJSON(set)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			case p != nil:
				fmt.Fprint(cmd.OutOrStdout(), parser.FormatTable(p.ParseSet(set), !flags.noColor))
			case group:
				fmt.Fprint(cmd.OutOrStdout(), formatter.FormatGrouped(grouper.Group(set)))
			default:
				fmt.Fprint(cmd.OutOrStdout(), formatter.Format(set))
			}

			if !set.OK() {
				return fmt.Errorf("%d of %d hosts failed", len(set.Failures()), set.Len())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&group, "group", "g", false, "collapse hosts with identical output; show outliers as diffs")
	cmd.Flags().StringArrayVarP(&extracts, "extract", "e", nil, "extract a field per host: field=/regex/ or field=col:N (repeatable)")
	cmd.Flags().StringVar(&builtin, "parse", "", "use a builtin parser (disk, free, uptime) and print a table")
	return cmd
}
