package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/aur-crawler/internal/storage/registry"
)

// newHealthCmd creates the 'health' subcommand.
func newHealthCmd() *cobra.Command {
	var css []string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to each storage backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			targets, err := connectionStrings(app.Config, css)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed []error
			for _, cs := range targets {
				kind, _ := registry.KindOf(cs)
				s, err := registry.Open(cmd.Context(), cs, registryOptions(app.Config))
				if err == nil {
					err = s.HealthCheck(cmd.Context())
					_ = s.Close()
				}
				if err != nil {
					failed = append(failed, err)
					fmt.Fprintf(out, "%-14s unavailable: %v\n", kind, err)
					continue
				}
				fmt.Fprintf(out, "%-14s ok\n", kind)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d backends unhealthy: %w", len(failed), len(targets), errors.Join(failed...))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&css, "cs", nil, "backend connection string, repeatable (default: storage.backends)")
	return cmd
}
