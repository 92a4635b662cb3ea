package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/grouper"
	"github.com/agent462/drover/internal/runner"
	"github.com/agent462/drover/internal/selector"
	execui "github.com/agent462/drover/internal/ui/exec"
)

func newConsoleCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open an interactive session against the targeted hosts",
		Long: `Open one session across the targeted hosts and issue commands
interactively. Connections stay open between commands and close when
the console exits ("exit", "quit", or EOF).

Lines may start with @-selectors scoping the command to a subset:
a glob (@web*), or the previous command's outcome (@ok, @differs,
@failed, @timeout). Selectors combine with commas: @failed,@timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(flags)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(cmd.Context(), flags, opts)
			if err != nil {
				return err
			}

			r := buildRunner(flags, opts)
			formatter := execui.NewFormatter(false, false, !flags.noColor)
			state := &selector.State{AllTargets: targets}

			return r.WithSession(cmd.Context(), targets, func(s *runner.Session) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "connected session across %d hosts; 'exit' to quit\n", len(targets))

				scanner := bufio.NewScanner(cmd.InOrStdin())
				for {
					fmt.Fprint(out, "drover> ")
					if !scanner.Scan() {
						fmt.Fprintln(out)
						return scanner.Err()
					}

					line := strings.TrimSpace(scanner.Text())
					switch line {
					case "":
						continue
					case "exit", "quit":
						return nil
					}

					sel, command := selector.ParseInput(line)
					if command == "" {
						fmt.Fprintf(out, "selector %q needs a command\n", sel)
						continue
					}
					selected, err := selector.Resolve(sel, state)
					if err != nil {
						fmt.Fprintln(out, err)
						continue
					}
					if len(selected) == 0 {
						fmt.Fprintln(out, "selector matched no hosts")
						continue
					}

					set, err := s.RunTargets(cmd.Context(), selected, command)
					if err != nil {
						return err
					}
					state.Grouped = grouper.Group(set)
					fmt.Fprint(out, formatter.Format(set))
				}
			})
		},
	}
	return cmd
}
