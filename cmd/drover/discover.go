package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/discover"
	"github.com/agent462/drover/internal/node"
	execui "github.com/agent462/drover/internal/ui/exec"
)

func newDiscoverCmd(flags *rootFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "discover <cidr> [-- <command>]",
		Short: "Scan an address range for SSH hosts, optionally running a command on them",
		Long: `Probe every address in a CIDR range for an open SSH port. With no
command the reachable addresses are printed; with a command they become
the target set and the command fans out across them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(flags)
			if err != nil {
				return err
			}

			hosts, err := discover.CIDRScan(cmd.Context(), args[0], port, opts.Concurrency, opts.Timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hosts) == 0 {
				fmt.Fprintln(out, "no SSH hosts found")
				return nil
			}

			if len(args) == 1 {
				for _, h := range hosts {
					fmt.Fprintln(out, h.Address)
				}
				return nil
			}

			targets := make([]node.Target, 0, len(hosts))
			for _, h := range hosts {
				targets = append(targets, h.Target(opts))
			}

			command := strings.Join(args[1:], " ")
			r := buildRunner(flags, opts)
			set, err := r.Run(cmd.Context(), targets, command)
			if err != nil {
				return err
			}

			formatter := execui.NewFormatter(flags.jsonOutput, false, !flags.noColor)
			if flags.jsonOutput {
				data, err := formatter.FormatJSON(set)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprint(out, formatter.Format(set))
			}

			if !set.OK() {
				return fmt.Errorf("%d of %d hosts failed", len(set.Failures()), set.Len())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 22, "TCP port to probe")
	return cmd
}
