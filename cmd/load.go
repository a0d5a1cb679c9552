package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/aur-crawler/internal/checkpoint"
	"github.com/JakeFAU/aur-crawler/internal/logging"
	"github.com/JakeFAU/aur-crawler/internal/pipeline"
	"github.com/JakeFAU/aur-crawler/internal/storage/registry"
)

// newLoadFromFSCmd creates the 'load-from-fs' subcommand.
func newLoadFromFSCmd() *cobra.Command {
	var (
		pages      pageFlags
		path       string
		css        []string
		duplicates int
	)
	cmd := &cobra.Command{
		Use:   "load-from-fs",
		Short: "Load BSON checkpoint files into the storage backends",
		Long: `Reads page_<N>.bson files from --path and inserts every package into each
backend. Without --start-page every page file in the directory is loaded in
ascending order.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger, _ := logging.ForRun(app.Logger, cmd.Name())

			dir, err := checkpoint.Open(path)
			if err != nil {
				return fmt.Errorf("open checkpoint directory: %w", err)
			}
			opts := pipeline.LoadOptions{Duplicates: duplicates}
			if cmd.Flags().Changed("start-page") || cmd.Flags().Changed("end-page") {
				r := pages.pageRange()
				opts.Range = &r
			}

			backends, err := openBackends(cmd.Context(), app, css)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := registry.CloseAll(backends); cerr != nil {
					logger.Warn("failed to close backends", zap.Error(cerr))
				}
			}()
			stopOps := startOps(cmd.Context(), app, backends, logger)
			defer stopOps()

			if _, err := pipeline.New(nil, logger).LoadFromFS(cmd.Context(), dir, backends, opts); err != nil {
				return fmt.Errorf("load from fs: %w", err)
			}
			return nil
		},
	}
	pages.register(cmd)
	cmd.Flags().StringVar(&path, "path", "", "directory holding page_<N>.bson files")
	cmd.Flags().StringSliceVar(&css, "cs", nil, "backend connection string, repeatable (default: storage.backends)")
	cmd.Flags().IntVar(&duplicates, "duplicates", 0, "also insert K renamed copies <name>_1..<name>_K of each package")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
