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

type pageFlags struct {
	startPage int
	endPage   int
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.startPage, "start-page", 1, "first listing page to process (1-based)")
	cmd.Flags().IntVar(&f.endPage, "end-page", 0, "last listing page to process, inclusive (default: start page)")
}

func (f *pageFlags) pageRange() pipeline.PageRange {
	return pipeline.PageRange{Start: f.startPage, End: f.endPage}
}

// newScrapeToFSCmd creates the 'scrape-to-fs' subcommand.
func newScrapeToFSCmd() *cobra.Command {
	var (
		pages pageFlags
		path  string
	)
	cmd := &cobra.Command{
		Use:   "scrape-to-fs",
		Short: "Crawl listing pages and save each one as a BSON checkpoint file",
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
			stopOps := startOps(cmd.Context(), app, nil, logger)
			defer stopOps()

			logger.Info("run started", zap.String("path", path), zap.Int("start_page", pages.startPage))
			p := pipeline.New(buildCrawler(app.Config, logger), logger)
			if _, err := p.ScrapeToFS(cmd.Context(), dir, pages.pageRange()); err != nil {
				return fmt.Errorf("scrape to fs: %w", err)
			}
			return nil
		},
	}
	pages.register(cmd)
	cmd.Flags().StringVar(&path, "path", "", "directory where page_<N>.bson files are written")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

// newScrapeToDBCmd creates the 'scrape-to-db' subcommand.
func newScrapeToDBCmd() *cobra.Command {
	var (
		pages pageFlags
		css   []string
	)
	cmd := &cobra.Command{
		Use:   "scrape-to-db",
		Short: "Crawl listing pages and insert every package into the storage backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger, _ := logging.ForRun(app.Logger, cmd.Name())

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

			p := pipeline.New(buildCrawler(app.Config, logger), logger)
			if _, err := p.ScrapeToDB(cmd.Context(), backends, pages.pageRange()); err != nil {
				return fmt.Errorf("scrape to db: %w", err)
			}
			return nil
		},
	}
	pages.register(cmd)
	cmd.Flags().StringSliceVar(&css, "cs", nil, "backend connection string, repeatable (default: storage.backends)")
	return cmd
}
