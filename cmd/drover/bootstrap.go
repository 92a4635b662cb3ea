package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agent462/drover/internal/bootstrap"
	execui "github.com/agent462/drover/internal/ui/exec"
)

func newBootstrapCmd(flags *rootFlags) *cobra.Command {
	var (
		templatePath  string
		validatorPath string
		secretPath    string
		runCommand    string
		values        []string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap [flags]",
		Short: "Run the first-time setup script on the targeted hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(flags)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(cmd.Context(), flags, opts)
			if err != nil {
				return err
			}

			if templatePath == "" {
				return fmt.Errorf("bootstrap requires --template")
			}
			tmpl, err := os.ReadFile(templatePath)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			bctx := bootstrap.Context{
				ConfigTemplate: string(tmpl),
				RunCommand:     runCommand,
			}
			if len(values) > 0 {
				bctx.Values = make(map[string]any, len(values))
				for _, v := range values {
					key, val, ok := strings.Cut(v, "=")
					if !ok || key == "" {
						return fmt.Errorf("invalid --set %q: want key=value", v)
					}
					bctx.Values[key] = val
				}
			}
			if validatorPath != "" {
				key, err := os.ReadFile(validatorPath)
				if err != nil {
					return fmt.Errorf("read validator key: %w", err)
				}
				bctx.ValidatorKey = key
			}
			if secretPath != "" {
				secret, err := os.ReadFile(secretPath)
				if err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
				bctx.Secret = secret
			}

			r := buildRunner(flags, opts)
			seq := bootstrap.New(r, bctx)
			set, err := seq.Run(cmd.Context(), targets)
			if err != nil {
				return err
			}

			formatter := execui.NewFormatter(flags.jsonOutput, false, !flags.noColor)
			if flags.jsonOutput {
				out, err := formatter.FormatJSON(set)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), formatter.Format(set))
			}

			if !set.OK() {
				return fmt.Errorf("%d of %d hosts failed to bootstrap", len(set.Failures()), set.Len())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&templatePath, "template", "", "agent config template file (required)")
	cmd.Flags().StringVar(&validatorPath, "validator-key", "", "validator key file to transfer")
	cmd.Flags().StringVar(&secretPath, "secret", "", "encrypted secret file to transfer")
	cmd.Flags().StringVar(&runCommand, "run-command", bootstrap.DefaultRunCommand, "agent install/run command")
	cmd.Flags().StringArrayVar(&values, "set", nil, "template value key=value (repeatable)")

	return cmd
}
