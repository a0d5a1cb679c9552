package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/aur-crawler/internal/fetcher"
	"github.com/JakeFAU/aur-crawler/internal/metrics"
	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/taskgroup"
	"github.com/JakeFAU/aur-crawler/internal/textutil"
)

// CommentPageStep is the offset distance between two comment pages.
const CommentPageStep = 10

// CommentOffsets returns the page offsets 0, 10, ... up to and including maxOffset.
func CommentOffsets(maxOffset int) []int {
	if maxOffset < 0 {
		maxOffset = 0
	}
	offsets := make([]int, 0, maxOffset/CommentPageStep+1)
	for o := 0; o <= maxOffset; o += CommentPageStep {
		offsets = append(offsets, o)
	}
	return offsets
}

// CommentPageURL returns the URL of the comment page at offset.
func CommentPageURL(detailURL string, offset int) string {
	if offset == 0 {
		return detailURL
	}
	sep := "?"
	if strings.Contains(detailURL, "?") {
		sep = "&"
	}
	return detailURL + sep + "O=" + strconv.Itoa(offset)
}

// CommentCrawler walks every comment page of a package thread.
type CommentCrawler struct {
	base        fetcher.Document
	pages       fetcher.Document
	scraper     *Scraper
	concurrency int
	logger      *zap.Logger
}

// NewCommentCrawler builds a crawler. base fetches the first page, pages fetches
// the rest of the fan-out. concurrency bounds in-flight page fetches per thread.
func NewCommentCrawler(
	base, pages fetcher.Document,
	s *Scraper,
	concurrency int,
	logger *zap.Logger,
) *CommentCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s == nil {
		s = New(nil)
	}
	return &CommentCrawler{
		base:        base,
		pages:       pages,
		scraper:     s,
		concurrency: concurrency,
		logger:      logger.Named("comments"),
	}
}

// Crawl returns every non-pinned comment of the thread at detailURL ordered by
// (page offset, position on page). Only a failure on the first page is returned;
// later pages that fail are logged and left out.
func (c *CommentCrawler) Crawl(ctx context.Context, detailURL string) ([]models.Comment, error) {
	first, err := c.base.Fetch(ctx, detailURL)
	if err != nil {
		metrics.ObserveCommentPage(err)
		return nil, fmt.Errorf("fetch first comment page: %w", err)
	}
	return c.CrawlFrom(ctx, detailURL, first), nil
}

// CrawlFrom is Crawl with the detail page at offset 0 already fetched.
func (c *CommentCrawler) CrawlFrom(ctx context.Context, detailURL string, first *goquery.Document) []models.Comment {
	metrics.ObserveCommentPage(nil)
	maxOffset, err := c.scraper.LastCommentOffset(first)
	if err != nil {
		c.logger.Warn("unreadable comment pagination, using first page only",
			zap.String("url", detailURL), zap.Error(err))
		maxOffset = 0
	}

	offsets := CommentOffsets(maxOffset)
	pages := taskgroup.Run(ctx, c.concurrency, offsets[1:], func(ctx context.Context, _ int, offset int) ([]models.Comment, error) {
		pageURL := CommentPageURL(detailURL, offset)
		doc, err := c.pages.Fetch(ctx, pageURL)
		metrics.ObserveCommentPage(err)
		if err != nil {
			return nil, err
		}
		return c.scraper.PageComments(doc, false), nil
	})

	later, failed := taskgroup.Values(pages)
	for i, err := range failed {
		c.logger.Warn("comment page dropped",
			zap.String("url", CommentPageURL(detailURL, offsets[i+1])),
			zap.Error(err))
	}

	comments := c.scraper.PageComments(first, true)
	for _, page := range later {
		comments = append(comments, page...)
	}
	return comments
}

// LastCommentOffset reads the highest page offset from the comment pagination
// control. A page without the control has a single page and returns 0.
func (s *Scraper) LastCommentOffset(doc *goquery.Document) (int, error) {
	nav := doc.Find(s.sel.CommentsNav).First()
	if nav.Length() == 0 {
		return 0, nil
	}
	last := nav.Find(s.sel.CommentsNavPage).Last()
	if last.Length() == 0 {
		return 0, nil
	}
	href, _ := last.Attr("href")
	return offsetFromHref(href)
}

func offsetFromHref(href string) (int, error) {
	if u, err := url.Parse(href); err == nil {
		if o := u.Query().Get("O"); o != "" {
			return parseOffset(o)
		}
	}
	idx := strings.LastIndex(href, "=")
	if idx < 0 {
		return 0, fmt.Errorf("pagination link %q has no offset", href)
	}
	raw := href[idx+1:]
	if hash := strings.IndexByte(raw, '#'); hash >= 0 {
		raw = raw[:hash]
	}
	return parseOffset(raw)
}

func parseOffset(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse comment offset %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative comment offset %d", n)
	}
	return n, nil
}

// PageComments extracts the (header, content) pairs of one comment page. When
// skipPinned is set, the first pair is treated as the pinned comment and dropped.
func (s *Scraper) PageComments(doc *goquery.Document, skipPinned bool) []models.Comment {
	comments := []models.Comment{}
	skipped := !skipPinned
	doc.Find(s.sel.CommentsBlock).Each(func(_ int, block *goquery.Selection) {
		headers := block.Find(s.sel.CommentHeader)
		contents := block.Find(s.sel.CommentContent)
		n := min(headers.Length(), contents.Length())
		for i := 0; i < n; i++ {
			if !skipped {
				skipped = true
				continue
			}
			comments = append(comments, models.Comment{
				Header:  textutil.StripTags(innerHTML(headers.Eq(i))),
				Content: textutil.StripTags(innerHTML(contents.Eq(i))),
			})
		}
	})
	return comments
}

func innerHTML(sel *goquery.Selection) string {
	html, err := sel.Html()
	if err != nil {
		return sel.Text()
	}
	return html
}
