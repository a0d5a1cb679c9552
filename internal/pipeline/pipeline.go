// Package pipeline drives the batch runs: crawl pages into checkpoint files,
// crawl pages straight into storage, or load checkpoint files into storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/aur-crawler/internal/checkpoint"
	"github.com/JakeFAU/aur-crawler/internal/crawler"
	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
	"github.com/JakeFAU/aur-crawler/internal/taskgroup"
)

var (
	// ErrInvalidRange is returned for page ranges that start below 1 or end before they start.
	ErrInvalidRange = errors.New("invalid page range")
	// ErrNoBackends is returned when a storage run has nothing to write to.
	ErrNoBackends = errors.New("no storage backends configured")
)

// PageCrawler assembles the items of one listing page.
type PageCrawler interface {
	CrawlPage(ctx context.Context, page int) ([]models.Item, crawler.Stats, error)
}

// PageRange is an inclusive, 1-based range of listing pages. End 0 means Start only.
type PageRange struct {
	Start int
	End   int
}

// Pages expands the range.
func (r PageRange) Pages() ([]int, error) {
	end := r.End
	if end == 0 {
		end = r.Start
	}
	if r.Start < 1 || end < r.Start {
		return nil, fmt.Errorf("%w: %d..%d", ErrInvalidRange, r.Start, end)
	}
	pages := make([]int, 0, end-r.Start+1)
	for p := r.Start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages, nil
}

// Summary reports the outcome of one run.
type Summary struct {
	Pages          int
	FailedPages    int
	Items          int
	Inserts        int
	FailedInserts  int
	CheckpointPath []string
	Duration       time.Duration
}

// LoadOptions selects which checkpoint pages to load.
type LoadOptions struct {
	// Range limits the load. Nil loads every page found in the directory.
	Range *PageRange
	// Duplicates inserts that many renamed copies <name>_1..<name>_K of each item.
	Duplicates int
}

// Pipeline runs batch jobs. Page failures are logged and skipped.
type Pipeline struct {
	crawler PageCrawler
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a Pipeline. pc may be nil for load-only runs.
func New(pc PageCrawler, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{crawler: pc, logger: logger, now: time.Now}
}

// ScrapeToFS crawls every page in r and writes each to its checkpoint file.
func (p *Pipeline) ScrapeToFS(ctx context.Context, dir *checkpoint.Dir, r PageRange) (Summary, error) {
	pages, err := r.Pages()
	if err != nil {
		return Summary{}, err
	}
	start := p.now()
	var sum Summary
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return p.finish(sum, start), fmt.Errorf("scrape to fs: %w", err)
		}
		sum.Pages++
		items, _, err := p.crawler.CrawlPage(ctx, page)
		if err != nil {
			sum.FailedPages++
			p.logger.Error("page failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		path, err := dir.WritePage(page, items)
		if err != nil {
			sum.FailedPages++
			p.logger.Error("checkpoint write failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		sum.Items += len(items)
		sum.CheckpointPath = append(sum.CheckpointPath, path)
		p.logger.Info("page saved", zap.Int("page", page), zap.Int("items", len(items)), zap.String("path", path))
	}
	sum = p.finish(sum, start)
	p.logSummary("scrape-to-fs", sum)
	return sum, nil
}

// ScrapeToDB crawls every page in r and inserts its items into every backend.
func (p *Pipeline) ScrapeToDB(ctx context.Context, backends []storage.Storage, r PageRange) (Summary, error) {
	pages, err := r.Pages()
	if err != nil {
		return Summary{}, err
	}
	if len(backends) == 0 {
		return Summary{}, ErrNoBackends
	}
	start := p.now()
	var sum Summary
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return p.finish(sum, start), fmt.Errorf("scrape to db: %w", err)
		}
		sum.Pages++
		items, _, err := p.crawler.CrawlPage(ctx, page)
		if err != nil {
			sum.FailedPages++
			p.logger.Error("page failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		sum.Items += len(items)
		for _, item := range items {
			p.insertAll(ctx, backends, item, &sum)
		}
	}
	sum = p.finish(sum, start)
	p.logSummary("scrape-to-db", sum)
	return sum, nil
}

// LoadFromFS reads checkpoint pages and inserts their items into every backend.
func (p *Pipeline) LoadFromFS(
	ctx context.Context,
	dir *checkpoint.Dir,
	backends []storage.Storage,
	opts LoadOptions,
) (Summary, error) {
	if len(backends) == 0 {
		return Summary{}, ErrNoBackends
	}
	if opts.Duplicates < 0 {
		return Summary{}, fmt.Errorf("duplicates must be >= 0")
	}
	var (
		pages []int
		err   error
	)
	if opts.Range != nil {
		pages, err = opts.Range.Pages()
	} else {
		pages, err = dir.Pages()
	}
	if err != nil {
		return Summary{}, err
	}

	start := p.now()
	var sum Summary
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return p.finish(sum, start), fmt.Errorf("load from fs: %w", err)
		}
		sum.Pages++
		items, err := dir.ReadPage(page)
		if err != nil {
			sum.FailedPages++
			p.logger.Error("checkpoint read failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		sum.Items += len(items)
		for _, item := range items {
			p.insertAll(ctx, backends, item, &sum)
			for k := 1; k <= opts.Duplicates; k++ {
				p.insertAll(ctx, backends, item.WithName(item.Name()+"_"+strconv.Itoa(k)), &sum)
			}
			p.logger.Debug("item loaded", zap.String("name", item.Name()), zap.Int("page", page))
		}
	}
	sum = p.finish(sum, start)
	p.logSummary("load-from-fs", sum)
	return sum, nil
}

// insertAll writes item to every backend concurrently. Failures are logged.
func (p *Pipeline) insertAll(ctx context.Context, backends []storage.Storage, item models.Item, sum *Summary) {
	results := taskgroup.Run(ctx, len(backends), backends,
		func(ctx context.Context, _ int, b storage.Storage) (struct{}, error) {
			return struct{}{}, b.Insert(ctx, item)
		})
	for i, res := range results {
		if res.Err != nil {
			sum.FailedInserts++
			p.logger.Error("insert failed",
				zap.String("name", item.Name()),
				zap.String("backend", backends[i].BackendName()),
				zap.Error(res.Err),
			)
			continue
		}
		sum.Inserts++
	}
}

func (p *Pipeline) finish(sum Summary, start time.Time) Summary {
	sum.Duration = p.now().Sub(start)
	return sum
}

func (p *Pipeline) logSummary(run string, sum Summary) {
	p.logger.Info("run finished",
		zap.String("run", run),
		zap.Int("pages", sum.Pages),
		zap.Int("failed_pages", sum.FailedPages),
		zap.Int("items", sum.Items),
		zap.Int("inserts", sum.Inserts),
		zap.Int("failed_inserts", sum.FailedInserts),
		zap.Duration("elapsed", sum.Duration),
	)
}
