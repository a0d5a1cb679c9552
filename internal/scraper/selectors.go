// Package scraper extracts AUR package data from parsed listing, detail, and comment documents.
package scraper

// Selectors is the CSS selector table for the AUR page layout. Build it once
// with DefaultSelectors and share it read-only.
type Selectors struct {
	ResultsRows string
	RowCells    string
	CellLink    string

	InfoRows  string
	InfoLabel string
	InfoValue string

	DepsItems   string
	DepsMembers string

	CommentsBlock   string
	CommentHeader   string
	CommentContent  string
	CommentsNav     string
	CommentsNavPage string
}

// DefaultSelectors returns the selector table for aur.archlinux.org.
func DefaultSelectors() Selectors {
	return Selectors{
		ResultsRows: "table.results tbody tr",
		RowCells:    "td",
		CellLink:    "a",

		InfoRows:  "table#pkginfo tr",
		InfoLabel: "th",
		InfoValue: "td",

		DepsItems:   "ul#pkgdepslist > li",
		DepsMembers: "em a",

		CommentsBlock:   "div.comments",
		CommentHeader:   "h4.comment-header",
		CommentContent:  "div.article-content",
		CommentsNav:     "p.comments-header-nav",
		CommentsNavPage: "a.page",
	}
}
