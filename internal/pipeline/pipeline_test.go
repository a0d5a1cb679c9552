package pipeline

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/aur-crawler/internal/aurtest"
	"github.com/JakeFAU/aur-crawler/internal/checkpoint"
	"github.com/JakeFAU/aur-crawler/internal/crawler"
	"github.com/JakeFAU/aur-crawler/internal/fetcher"
	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/scraper"
	"github.com/JakeFAU/aur-crawler/internal/storage"
	"github.com/JakeFAU/aur-crawler/internal/storage/memory"
)

type fakeCrawler struct {
	pages map[int][]models.Item
	fail  map[int]error
	calls []int
}

func (f *fakeCrawler) CrawlPage(_ context.Context, page int) ([]models.Item, crawler.Stats, error) {
	f.calls = append(f.calls, page)
	if err := f.fail[page]; err != nil {
		return nil, crawler.Stats{Page: page}, err
	}
	items := f.pages[page]
	return items, crawler.Stats{Page: page, Listed: len(items), Succeeded: len(items)}, nil
}

func item(name string) models.Item {
	return models.Item{
		Basic:        models.BasicData{Name: name, DetailPath: name},
		Dependencies: []models.Dependency{{Group: "make", Packages: []string{"go"}}},
		Comments:     []models.Comment{{Header: "h", Content: "c"}},
	}
}

func TestPageRange(t *testing.T) {
	t.Parallel()

	pages, err := PageRange{Start: 2}.Pages()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)

	pages, err = PageRange{Start: 1, End: 3}.Pages()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)

	_, err = PageRange{Start: 0}.Pages()
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = PageRange{Start: 4, End: 2}.Pages()
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestScrapeToFSContinuesPastFailedPages(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{
		pages: map[int][]models.Item{1: {item("a"), item("b")}, 3: {item("c")}},
		fail:  map[int]error{2: errors.New("listing unavailable")},
	}
	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)

	sum, err := New(fc, zaptest.NewLogger(t)).ScrapeToFS(context.Background(), dir, PageRange{Start: 1, End: 3})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, fc.calls)
	assert.Equal(t, 3, sum.Pages)
	assert.Equal(t, 1, sum.FailedPages)
	assert.Equal(t, 3, sum.Items)
	assert.Len(t, sum.CheckpointPath, 2)

	pages, err := dir.Pages()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, pages)
	got, err := dir.ReadPage(1)
	require.NoError(t, err)
	assert.Equal(t, fc.pages[1], got)
}

func TestScrapeToDBInsertsIntoEveryBackend(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{pages: map[int][]models.Item{1: {item("a")}, 2: {item("b")}}}
	m1, m2 := memory.New(), memory.New()

	sum, err := New(fc, zaptest.NewLogger(t)).ScrapeToDB(context.Background(), []storage.Storage{m1, m2}, PageRange{Start: 1, End: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Items)
	assert.Equal(t, 4, sum.Inserts)
	assert.Zero(t, sum.FailedInserts)
	assert.Equal(t, 2, m1.Len())
	assert.Equal(t, 2, m2.Len())
}

func TestScrapeToDBLogsInsertFailures(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{pages: map[int][]models.Item{1: {item("a"), item("b")}}}
	failing := &storage.MockStorage{}
	failing.On("BackendName").Return("mock")
	failing.On("Insert", mock.Anything, mock.MatchedBy(func(it models.Item) bool { return it.Name() == "a" })).
		Return(storage.Unavailable("mock", errors.New("down")))
	failing.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mem := memory.New()

	sum, err := New(fc, zaptest.NewLogger(t)).ScrapeToDB(context.Background(), []storage.Storage{failing, mem}, PageRange{Start: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Inserts)
	assert.Equal(t, 1, sum.FailedInserts)
	assert.Equal(t, 2, mem.Len())
}

func TestScrapeToDBRequiresBackends(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeCrawler{}, nil).ScrapeToDB(context.Background(), nil, PageRange{Start: 1})
	require.ErrorIs(t, err, ErrNoBackends)
}

func TestScrapeStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc := &fakeCrawler{}
	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)

	_, err = New(fc, nil).ScrapeToFS(ctx, dir, PageRange{Start: 1, End: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fc.calls)
}

func TestLoadFromFSDiscoversPagesAndDuplicates(t *testing.T) {
	t.Parallel()

	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	_, err = dir.WritePage(2, []models.Item{item("b")})
	require.NoError(t, err)
	_, err = dir.WritePage(1, []models.Item{item("a")})
	require.NoError(t, err)

	mem := memory.New()
	sum, err := New(nil, zaptest.NewLogger(t)).LoadFromFS(context.Background(), dir, []storage.Storage{mem}, LoadOptions{Duplicates: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 2, sum.Items)
	assert.Equal(t, 6, sum.Inserts)

	names := mem.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"a", "a_1", "a_2", "b", "b_1", "b_2"}, names)

	dup, err := mem.Get(context.Background(), "a_2")
	require.NoError(t, err)
	assert.Equal(t, "a", dup.Basic.DetailPath)
}

func TestLoadFromFSRangeSkipsMissingPages(t *testing.T) {
	t.Parallel()

	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	_, err = dir.WritePage(1, []models.Item{item("a")})
	require.NoError(t, err)

	mem := memory.New()
	sum, err := New(nil, zaptest.NewLogger(t)).LoadFromFS(context.Background(), dir, []storage.Storage{mem},
		LoadOptions{Range: &PageRange{Start: 1, End: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedPages)
	assert.Equal(t, 1, mem.Len())
}

func TestLoadFromFSRejectsNegativeDuplicates(t *testing.T) {
	t.Parallel()

	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	_, err = New(nil, nil).LoadFromFS(context.Background(), dir, []storage.Storage{memory.New()}, LoadOptions{Duplicates: -1})
	require.Error(t, err)
}

func TestCrawlCheckpointLoadEndToEnd(t *testing.T) {
	t.Parallel()

	pkgs := []aurtest.Package{
		aurtest.Sample("alpha").WithComments(14),
		aurtest.Sample("beta"),
		aurtest.Sample("gamma"),
	}
	srv := aurtest.NewServer(pkgs)
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	transport := fetcher.NewTransport()
	content := fetcher.New(fetcher.Config{Name: "content", Timeout: 2 * time.Second}, transport)
	comment := fetcher.New(fetcher.Config{Name: "comment", Timeout: time.Second}, transport)
	s := scraper.New(nil)
	c := crawler.New(crawler.Config{BaseURL: srv.URL, PerPage: 2, ItemConcurrency: 2}, content, s,
		scraper.NewCommentCrawler(content, comment, s, 2, logger), logger)

	dir, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	p := New(c, logger)

	sum, err := p.ScrapeToFS(context.Background(), dir, PageRange{Start: 1, End: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Items)

	mem := memory.New()
	_, err = p.LoadFromFS(context.Background(), dir, []storage.Storage{mem}, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, mem.Len())

	alpha, err := mem.Get(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, pkgs[0].Comments, alpha.Comments)
	assert.Equal(t, "bob", alpha.Additional.Submitter)
}
