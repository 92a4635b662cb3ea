package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/recipe"
	execui "github.com/agent462/drover/internal/ui/exec"
)

func newRecipeCmd(flags *rootFlags) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "recipe [name]",
		Short: "Run a named multi-step command sequence across the fleet",
		Long: `Run a recipe: a named sequence of commands executed in order across
the targeted hosts. Steps may carry @-selector prefixes scoping them to
the previous step's outcome (for example "@differs systemctl status
drover-agent"). User recipes from the config file override built-ins
with the same name. Use --list to see what is available.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return err
			}

			if list || len(args) == 0 {
				return printRecipes(cmd, cfg)
			}
			name := args[0]

			rcp, _, found := recipe.Resolve(name, cfg)
			if !found {
				return fmt.Errorf("unknown recipe %q (try --list)", name)
			}

			steps := make([]recipe.Step, 0, len(rcp.Steps))
			for _, raw := range rcp.Steps {
				steps = append(steps, recipe.ParseStep(raw))
			}

			opts, err := buildOptions(flags)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(cmd.Context(), flags, opts)
			if err != nil {
				return err
			}

			r := recipe.New(buildRunner(flags, opts), targets)
			results, runErr := r.Run(cmd.Context(), steps)

			formatter := execui.NewFormatter(false, false, !flags.noColor)
			out := cmd.OutOrStdout()
			failed := false
			for i, res := range results {
				fmt.Fprintf(out, "step %d/%d: %s\n", i+1, len(steps), res.Step.Command)
				fmt.Fprint(out, formatter.FormatGrouped(res.Grouped))
				if !res.Set.OK() {
					failed = true
				}
			}
			if runErr != nil {
				return runErr
			}
			if failed {
				return fmt.Errorf("recipe %q had failing hosts", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list available recipes")
	return cmd
}

func printRecipes(cmd *cobra.Command, cfg *config.Config) error {
	merged := recipe.Merged(cfg)
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		r := merged[name]
		origin := ""
		if _, userDefined := cfg.Recipes[name]; userDefined {
			origin = " (user)"
		}
		fmt.Fprintf(out, "%-16s %s%s\n", name, r.Description, origin)
	}
	return nil
}
