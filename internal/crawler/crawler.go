// Package crawler drives one AUR listing page through the list, detail, and
// comment scrapers and assembles complete package items.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/aur-crawler/internal/fetcher"
	"github.com/JakeFAU/aur-crawler/internal/metrics"
	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/scraper"
	"github.com/JakeFAU/aur-crawler/internal/taskgroup"
)

// Config holds the settings for a crawl session.
type Config struct {
	BaseURL string
	// ListPath is the listing endpoint relative to BaseURL.
	ListPath string
	// ListQuery carries extra listing parameters such as sort order.
	ListQuery string
	PerPage   int
	// ItemConcurrency bounds the number of items crawled at once.
	ItemConcurrency int
	FailFastRows    bool
}

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page numbers start at 1")

// CommentSource lists the comments of one package thread whose detail page,
// which is also comment page 0, has already been fetched.
type CommentSource interface {
	CrawlFrom(ctx context.Context, detailURL string, first *goquery.Document) []models.Comment
}

// Stats summarizes one listing page crawl.
type Stats struct {
	Page      int
	Listed    int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Crawler assembles items for listing pages.
type Crawler struct {
	cfg      Config
	pages    fetcher.Document
	scraper  *scraper.Scraper
	comments CommentSource
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Crawler. pages fetches listing and detail documents.
func New(
	cfg Config,
	pages fetcher.Document,
	s *scraper.Scraper,
	comments CommentSource,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s == nil {
		s = scraper.New(nil)
	}
	if cfg.ListPath == "" {
		cfg.ListPath = "/packages"
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 250
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Crawler{
		cfg:      cfg,
		pages:    pages,
		scraper:  s,
		comments: comments,
		logger:   logger.Named("crawler"),
		now:      time.Now,
	}
}

// ListingURL returns the URL of the 1-based listing page.
func (c *Crawler) ListingURL(page int) string {
	q, err := url.ParseQuery(c.cfg.ListQuery)
	if err != nil {
		q = url.Values{}
	}
	q.Set("O", strconv.Itoa((page-1)*c.cfg.PerPage))
	q.Set("PP", strconv.Itoa(c.cfg.PerPage))
	return c.cfg.BaseURL + c.cfg.ListPath + "?" + q.Encode()
}

// DetailURL returns the detail page URL for a normalized detail path. Listing
// links may already be percent-encoded, so the path is decoded before escaping.
func (c *Crawler) DetailURL(detailPath string) string {
	if raw, err := url.PathUnescape(detailPath); err == nil {
		detailPath = raw
	}
	return c.cfg.BaseURL + "/packages/" + url.PathEscape(detailPath)
}

// CrawlPage crawls one listing page. Items whose detail or comment crawl fails
// are logged and left out; the rest keep their listing order. An error is
// returned only when the listing itself cannot be fetched or, with
// FailFastRows, when a row cannot be parsed.
func (c *Crawler) CrawlPage(ctx context.Context, page int) ([]models.Item, Stats, error) {
	start := c.now()
	stats := Stats{Page: page}
	if page < 1 {
		return nil, stats, fmt.Errorf("crawl page %d: %w", page, ErrInvalidPage)
	}

	pageURL := c.ListingURL(page)
	logger := c.logger.With(zap.Int("page", page), zap.String("url", pageURL))

	doc, err := c.pages.Fetch(ctx, pageURL)
	if err != nil {
		metrics.ObserveListingPage(err)
		return nil, stats, fmt.Errorf("fetch listing page %d: %w", page, err)
	}

	basics, err := c.scraper.ScrapeList(doc, pageURL, scraper.ListOptions{
		FailFast: c.cfg.FailFastRows,
		OnRowError: func(rowErr *scraper.RowError) {
			logger.Warn("listing row skipped", zap.Int("row", rowErr.Row), zap.Error(rowErr.Err))
		},
	})
	if err != nil {
		metrics.ObserveListingPage(err)
		return nil, stats, fmt.Errorf("scrape listing page %d: %w", page, err)
	}
	stats.Listed = len(basics)

	results := taskgroup.Run(ctx, c.cfg.ItemConcurrency, basics,
		func(ctx context.Context, _ int, basic models.BasicData) (models.Item, error) {
			return c.CrawlItem(ctx, basic)
		})

	items, failed := taskgroup.Values(results)
	for i, err := range failed {
		metrics.ObserveItem(err)
		logger.Warn("item dropped", zap.String("name", basics[i].Name), zap.Error(err))
	}
	for range items {
		metrics.ObserveItem(nil)
	}
	stats.Failed = len(failed)
	stats.Succeeded = len(items)
	stats.Duration = c.now().Sub(start)
	metrics.ObserveListingPage(nil)

	logger.Info("listing page crawled",
		zap.Int("listed", stats.Listed),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", stats.Duration),
	)
	return items, stats, nil
}

// CrawlItem fetches the detail page of one listing row once, then scrapes its
// attributes and walks the remaining comment pages concurrently.
func (c *Crawler) CrawlItem(ctx context.Context, basic models.BasicData) (models.Item, error) {
	detailURL := c.DetailURL(basic.DetailPath)
	item := models.Item{Basic: basic}

	doc, err := c.pages.Fetch(ctx, detailURL)
	if err != nil {
		return models.Item{}, fmt.Errorf("crawl item %s: fetch detail: %w", basic.Name, err)
	}

	// Both goroutines only read doc. A failed attribute scrape cancels the comment fan-out.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		additional, deps, err := c.scraper.ScrapeDetail(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", detailURL, err)
		}
		item.Additional = additional
		item.Dependencies = deps
		return nil
	})
	g.Go(func() error {
		item.Comments = c.comments.CrawlFrom(gctx, detailURL, doc)
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.Item{}, fmt.Errorf("crawl item %s: %w", basic.Name, err)
	}

	c.logger.Debug("item crawled",
		zap.String("name", basic.Name),
		zap.Int("dependencies", len(item.Dependencies)),
		zap.Int("comments", len(item.Comments)),
	)
	return item, nil
}
