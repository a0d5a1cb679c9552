package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/aur-crawler/internal/models"
)

// Scraper extracts structured data from already parsed documents.
type Scraper struct {
	sel *Selectors
}

// New returns a Scraper bound to sel. A nil sel uses DefaultSelectors.
func New(sel *Selectors) *Scraper {
	if sel == nil {
		def := DefaultSelectors()
		sel = &def
	}
	return &Scraper{sel: sel}
}

// Selectors returns the table this scraper was built with.
func (s *Scraper) Selectors() *Selectors {
	return s.sel
}

// ListOptions controls how row construction failures are handled.
type ListOptions struct {
	// FailFast aborts the page on the first bad row.
	FailFast bool
	// OnRowError is called for every skipped row when FailFast is false.
	OnRowError func(err *RowError)
}

// RowError reports a listing row that could not be turned into BasicData.
type RowError struct {
	PageURL string
	Row     int
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("scrape row %d of %s: %v", e.Row, e.PageURL, e.Err)
}

// Unwrap returns the construction error.
func (e *RowError) Unwrap() error { return e.Err }

// RowFields flattens one listing row into its positional field sequence.
// A cell holding a link yields the link text and its href; any other cell
// yields its trimmed text.
func (s *Scraper) RowFields(row *goquery.Selection) []string {
	var fields []string
	row.Find(s.sel.RowCells).Each(func(_ int, cell *goquery.Selection) {
		if link := cell.Find(s.sel.CellLink).First(); link.Length() > 0 {
			href, _ := link.Attr("href")
			fields = append(fields, strings.TrimSpace(link.Text()), href)
			return
		}
		fields = append(fields, strings.TrimSpace(cell.Text()))
	})
	return fields
}

// ScrapeList extracts one BasicData per results row of a listing document.
func (s *Scraper) ScrapeList(doc *goquery.Document, pageURL string, opts ListOptions) ([]models.BasicData, error) {
	var (
		out      []models.BasicData
		firstErr error
	)
	doc.Find(s.sel.ResultsRows).EachWithBreak(func(i int, row *goquery.Selection) bool {
		basic, err := models.NewBasicData(s.RowFields(row))
		if err != nil {
			rowErr := &RowError{PageURL: pageURL, Row: i, Err: err}
			if opts.FailFast {
				firstErr = rowErr
				return false
			}
			if opts.OnRowError != nil {
				opts.OnRowError(rowErr)
			}
			return true
		}
		out = append(out, basic)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// NormalizeLabel turns an attribute label such as "Git Clone URL:" into "gitcloneurl".
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	label = strings.ToLower(label)
	return strings.Join(strings.Fields(label), "")
}

// DetailFields reads the attribute table of a detail document into a key/value bag.
func (s *Scraper) DetailFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find(s.sel.InfoRows).Each(func(_ int, row *goquery.Selection) {
		label := row.Find(s.sel.InfoLabel).First()
		if label.Length() == 0 {
			return
		}
		key := NormalizeLabel(label.Text())
		if key == "" {
			return
		}
		value := row.Find(s.sel.InfoValue).First()
		if value.Length() == 0 {
			return
		}
		fields[key] = s.cellValue(value)
	})
	return fields
}

func (s *Scraper) cellValue(cell *goquery.Selection) string {
	links := cell.Find(s.sel.CellLink)
	if links.Length() == 0 {
		return strings.TrimSpace(cell.Text())
	}
	texts := make([]string, 0, links.Length())
	links.Each(func(_ int, a *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(a.Text()))
	})
	return strings.Join(texts, ",")
}

// Dependencies reads the dependency groups of a detail document.
func (s *Scraper) Dependencies(doc *goquery.Document) []models.Dependency {
	deps := []models.Dependency{}
	doc.Find(s.sel.DepsItems).Each(func(_ int, li *goquery.Selection) {
		group := li.Find(s.sel.CellLink).First()
		if group.Length() == 0 {
			return
		}
		dep := models.Dependency{
			Group:    strings.TrimSpace(group.Text()),
			Packages: []string{},
		}
		li.Find(s.sel.DepsMembers).Each(func(_ int, a *goquery.Selection) {
			dep.Packages = append(dep.Packages, strings.TrimSpace(a.Text()))
		})
		deps = append(deps, dep)
	})
	return deps
}

// ScrapeDetail extracts the additional attributes and dependency groups of a detail document.
func (s *Scraper) ScrapeDetail(doc *goquery.Document) (models.AdditionalData, []models.Dependency, error) {
	additional, err := models.NewAdditionalData(s.DetailFields(doc))
	if err != nil {
		return models.AdditionalData{}, nil, fmt.Errorf("scrape detail: %w", err)
	}
	return additional, s.Dependencies(doc), nil
}
