package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/aur-crawler/internal/config"
	"github.com/JakeFAU/aur-crawler/internal/crawler"
	"github.com/JakeFAU/aur-crawler/internal/fetcher"
	"github.com/JakeFAU/aur-crawler/internal/ratelimit"
	"github.com/JakeFAU/aur-crawler/internal/scraper"
	"github.com/JakeFAU/aur-crawler/internal/server"
	"github.com/JakeFAU/aur-crawler/internal/storage"
	"github.com/JakeFAU/aur-crawler/internal/storage/registry"
)

// buildCrawler wires the two fetchers over one shared transport and limiter,
// the scraper and the comment crawler into a page crawler.
func buildCrawler(cfg config.Config, logger *zap.Logger) *crawler.Crawler {
	transport := fetcher.NewTransport()
	limiter := requestLimiter(cfg)
	content := fetcher.New(fetcher.Config{
		Name:      "content",
		UserAgent: cfg.Site.UserAgent,
		Timeout:   cfg.Crawler.PageTimeout,
		Limiter:   limiter,
	}, transport)
	comment := fetcher.New(fetcher.Config{
		Name:      "comment",
		UserAgent: cfg.Site.UserAgent,
		Timeout:   cfg.Crawler.CommentTimeout,
		Limiter:   limiter,
	}, transport)

	s := scraper.New(nil)
	comments := scraper.NewCommentCrawler(content, comment, s, cfg.Crawler.CommentConcurrency, logger)
	return crawler.New(crawler.Config{
		BaseURL:         cfg.Site.BaseURL,
		ListQuery:       cfg.Site.ListQuery,
		PerPage:         cfg.Site.PerPage,
		ItemConcurrency: cfg.Crawler.ItemConcurrency,
		FailFastRows:    cfg.Crawler.FailFastRows,
	}, content, s, comments, logger)
}

// requestLimiter returns nil when pacing is off so fetchers skip the wait.
func requestLimiter(cfg config.Config) fetcher.Limiter {
	l := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Burst:             cfg.Crawler.Burst,
	})
	if l.Unlimited() {
		return nil
	}
	return l
}

func registryOptions(cfg config.Config) registry.Options {
	return registry.Options{
		PostgresSchema:    cfg.Storage.Postgres.Schema,
		PostgresMaxConns:  cfg.Storage.Postgres.MaxConns,
		ElasticMaxRetries: cfg.Storage.Elasticsearch.MaxRetries,
	}
}

// connectionStrings prefers the --cs flags and falls back to storage.backends.
func connectionStrings(cfg config.Config, flags []string) ([]string, error) {
	if len(flags) > 0 {
		return flags, nil
	}
	css, err := cfg.ConnectionStrings()
	if err != nil {
		return nil, fmt.Errorf("resolve storage backends: %w", err)
	}
	return css, nil
}

// openBackends opens every backend or none. Any failure aborts the run.
func openBackends(ctx context.Context, app *App, flags []string) ([]storage.Storage, error) {
	css, err := connectionStrings(app.Config, flags)
	if err != nil {
		return nil, err
	}
	backends, err := registry.OpenAll(ctx, css, registryOptions(app.Config))
	if err != nil {
		return nil, fmt.Errorf("open storage backends: %w", err)
	}
	for _, b := range backends {
		app.Logger.Info("storage backend ready", zap.String("backend", b.BackendName()))
	}
	return backends, nil
}

// startOps serves the ops endpoints when an address is configured. The
// returned func stops the server and waits for it.
func startOps(ctx context.Context, app *App, backends []storage.Storage, logger *zap.Logger) func() {
	if app.MetricsAddr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.New(backends, logger.Named("ops")).Run(ctx, app.MetricsAddr); err != nil {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
