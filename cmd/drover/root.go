package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/directory"
	"github.com/agent462/drover/internal/logging"
	"github.com/agent462/drover/internal/node"
	"github.com/agent462/drover/internal/runner"
	dssh "github.com/agent462/drover/internal/ssh"
)

// rootFlags holds flags shared by all subcommands.
type rootFlags struct {
	inventory   string
	search      string
	hosts       []string
	user        string
	password    string
	keys        []string
	timeout     time.Duration
	concurrency int
	noSudo      bool
	insecure    bool
	jsonOutput  bool
	noColor     bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "drover",
		Short:         "Run commands and bootstrap scripts across a fleet of hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.inventory, "inventory", "i", "", "inventory YAML file (defaults to directory service config)")
	pf.StringVarP(&flags.search, "search", "s", "", "node search pattern (glob on node names)")
	pf.StringSliceVar(&flags.hosts, "host", nil, "target a host directly, bypassing the inventory (repeatable)")
	pf.StringVarP(&flags.user, "user", "u", "", "remote login user")
	pf.StringVarP(&flags.password, "password", "p", "", "password ('-' to prompt)")
	pf.StringSliceVarP(&flags.keys, "key", "k", nil, "private key file (repeatable; takes precedence over password)")
	pf.DurationVarP(&flags.timeout, "timeout", "t", 0, "per-host timeout (default 5s)")
	pf.IntVarP(&flags.concurrency, "concurrency", "c", 0, "max simultaneous connections (default 8)")
	pf.BoolVar(&flags.noSudo, "no-sudo", false, "run commands without elevation")
	pf.BoolVar(&flags.insecure, "insecure", false, "skip host key verification")
	pf.BoolVar(&flags.jsonOutput, "json", false, "emit JSON output")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log connection and command activity")

	root.AddCommand(newExecCmd(flags))
	root.AddCommand(newBootstrapCmd(flags))
	root.AddCommand(newConsoleCmd(flags))
	root.AddCommand(newRecipeCmd(flags))
	root.AddCommand(newDiscoverCmd(flags))

	return root
}

// buildOptions merges the config file defaults with command-line flags.
func buildOptions(flags *rootFlags) (config.Options, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return config.Options{}, err
	}

	opts := cfg.Options()
	if flags.user != "" {
		opts.User = flags.user
	}
	if len(flags.keys) > 0 {
		opts.Keys = flags.keys
	}
	if flags.timeout > 0 {
		opts.Timeout = flags.timeout
	}
	if flags.concurrency > 0 {
		opts.Concurrency = flags.concurrency
	}
	if flags.noSudo {
		opts.Sudo = false
	}

	if flags.password == "-" {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return config.Options{}, fmt.Errorf("read password: %w", err)
		}
		opts.Password = string(pw)
	} else if flags.password != "" {
		opts.Password = flags.password
	}

	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return config.Options{}, err
	}
	return opts, nil
}

// resolveTargets builds the per-run target list from --host entries or
// an inventory search.
func resolveTargets(ctx context.Context, flags *rootFlags, opts config.Options) ([]node.Target, error) {
	if len(flags.hosts) > 0 {
		targets := make([]node.Target, 0, len(flags.hosts))
		for _, h := range flags.hosts {
			hostOpts := opts
			config.MergeSSHConfig(h, &hostOpts)
			targets = append(targets, node.StaticTarget(h, hostOpts))
		}
		return targets, nil
	}

	if flags.inventory == "" {
		return nil, fmt.Errorf("no targets: provide --host or an --inventory with --search")
	}
	if flags.search == "" {
		return nil, fmt.Errorf("no search pattern: provide --search with --inventory")
	}

	inv, err := directory.LoadInventory(flags.inventory)
	if err != nil {
		return nil, err
	}
	targets, err := directory.Targets(ctx, inv, flags.search, opts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("search %q matched no nodes", flags.search)
	}
	return targets, nil
}

// buildRunner wires the engine from the flags.
func buildRunner(flags *rootFlags, opts config.Options) *runner.Runner {
	log := logging.Discard()
	if flags.verbose {
		log = logging.New(os.Stderr, logging.FormatText, slog.LevelInfo)
	}

	return runner.New(
		runner.WithConcurrency(opts.Concurrency),
		runner.WithLogger(log),
		runner.WithDialConfig(dssh.DialConfig{
			AcceptUnknownHosts: flags.insecure,
			Logger:             log,
		}),
	)
}
