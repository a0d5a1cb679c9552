// Package aurtest renders AUR-shaped HTML and serves it from an httptest server.
package aurtest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/aur-crawler/internal/models"
)

// CommentsPerPage matches the site's comment pagination unit.
const CommentsPerPage = 10

// Package describes one fake package.
type Package struct {
	Name        string
	Version     string
	Votes       int
	Popularity  string
	Description string
	Maintainer  string
	LastUpdated string

	GitCloneURL    string
	Submitter      string
	FirstSubmitted string
	Keywords       []string
	Licenses       string
	Conflicts      []string
	Provides       []string

	Dependencies []models.Dependency
	Pinned       *models.Comment
	Comments     []models.Comment
}

// Sample returns a fully populated package named name.
func Sample(name string) Package {
	return Package{
		Name:           name,
		Version:        "1.0.0-1",
		Votes:          12,
		Popularity:     "0.53",
		Description:    "A package called " + name,
		Maintainer:     "alice",
		LastUpdated:    "2024-02-01 12:00 (UTC)",
		GitCloneURL:    "https://aur.archlinux.org/" + name + ".git",
		Submitter:      "bob",
		FirstSubmitted: "2020-01-01 08:00 (UTC)",
		Licenses:       "MIT",
		Dependencies: []models.Dependency{
			{Group: "abc", Packages: []string{"aaa", "bbb", "ccc"}},
		},
		Pinned: &models.Comment{Header: "alice commented (pinned)", Content: "read the wiki"},
		Comments: []models.Comment{
			{Header: "carol commented on 2024-01-01", Content: "works for me"},
			{Header: "dave commented on 2024-01-02", Content: "thanks"},
		},
	}
}

// WithComments returns p with n generated comments.
func (p Package) WithComments(n int) Package {
	p.Comments = make([]models.Comment, n)
	for i := range n {
		p.Comments[i] = models.Comment{
			Header:  fmt.Sprintf("user%d commented", i),
			Content: fmt.Sprintf("comment body %d", i),
		}
	}
	return p
}

// ListingHTML renders a results table with one row per package.
func ListingHTML(pkgs []Package) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="pkglist-results"><table class="results"><thead><tr>`)
	b.WriteString(`<th>Name</th><th>Version</th><th>Votes</th><th>Popularity</th>`)
	b.WriteString(`<th>Description</th><th>Maintainer</th><th>Last Updated</th></tr></thead><tbody>`)
	for _, p := range pkgs {
		fmt.Fprintf(&b, `<tr><td><a href="/packages/%s">%s</a></td>`, PathSegment(p.Name), html.EscapeString(p.Name))
		fmt.Fprintf(&b, `<td>%s</td>`, html.EscapeString(p.Version))
		fmt.Fprintf(&b, `<td>%d</td>`, p.Votes)
		fmt.Fprintf(&b, `<td>%s</td>`, html.EscapeString(p.Popularity))
		fmt.Fprintf(&b, "<td>\n  %s\n</td>", html.EscapeString(p.Description))
		fmt.Fprintf(&b, `<td>%s</td>`, html.EscapeString(p.Maintainer))
		fmt.Fprintf(&b, `<td>%s</td></tr>`, html.EscapeString(p.LastUpdated))
	}
	b.WriteString(`</tbody></table></div></body></html>`)
	return b.String()
}

// PathSegment encodes name the way the site writes listing links, with '+'
// percent-encoded as well.
func PathSegment(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "+", "%2B")
}

// LastOffset is the highest comment page offset for p.
func (p Package) LastOffset() int {
	if len(p.Comments) <= CommentsPerPage {
		return 0
	}
	return ((len(p.Comments) - 1) / CommentsPerPage) * CommentsPerPage
}

// DetailHTML renders the detail page of p showing the comment page at offset.
func DetailHTML(p Package, offset int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="pkgdetails"><table id="pkginfo"><tbody>`)
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>", label, value)
	}
	links := func(items []string) string {
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = fmt.Sprintf(`<a href="/packages/?K=%s">%s</a>`, it, html.EscapeString(it))
		}
		return strings.Join(parts, ", ")
	}
	row("Git Clone URL:", fmt.Sprintf(`<a class="copy" href="%s">%s</a> (read-only, click to copy)`, p.GitCloneURL, p.GitCloneURL))
	row("Package Base:", fmt.Sprintf(`<a href="/pkgbase/%s">%s</a>`, p.Name, p.Name))
	row("Description:", html.EscapeString(p.Description))
	if len(p.Keywords) > 0 {
		row("Keywords:", links(p.Keywords))
	}
	if p.Licenses != "" {
		row("Licenses:", html.EscapeString(p.Licenses))
	}
	if len(p.Conflicts) > 0 {
		row("Conflicts:", links(p.Conflicts))
	}
	if len(p.Provides) > 0 {
		row("Provides:", links(p.Provides))
	}
	row("Submitter:", fmt.Sprintf(`<a href="/account/%s">%s</a>`, p.Submitter, p.Submitter))
	row("Votes:", strconv.Itoa(p.Votes))
	row("Popularity:", html.EscapeString(p.Popularity))
	row("First Submitted:", html.EscapeString(p.FirstSubmitted))
	row("Last Updated:", html.EscapeString(p.LastUpdated))
	b.WriteString(`</tbody></table></div>`)

	b.WriteString(`<div id="pkgdeps"><ul id="pkgdepslist">`)
	for _, dep := range p.Dependencies {
		fmt.Fprintf(&b, `<li><a href="/groups/%s">%s</a>`, dep.Group, html.EscapeString(dep.Group))
		for _, member := range dep.Packages {
			fmt.Fprintf(&b, ` <em><a href="/packages/%s">%s</a></em>`, member, html.EscapeString(member))
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul></div>`)

	if offset == 0 && p.Pinned != nil {
		b.WriteString(`<div class="comments package-comments"><div class="comments-header"><h3>Pinned Comments</h3></div>`)
		writeComment(&b, *p.Pinned)
		b.WriteString(`</div>`)
	}

	b.WriteString(`<div class="comments package-comments"><div class="comments-header"><h3>Latest Comments</h3>`)
	if last := p.LastOffset(); last > 0 {
		b.WriteString(`<p class="comments-header-nav">`)
		for o := 0; o <= last; o += CommentsPerPage {
			fmt.Fprintf(&b, `<a class="page" href="/packages/%s?O=%d#comments">%d</a> `, p.Name, o, o/CommentsPerPage+1)
		}
		fmt.Fprintf(&b, `<a class="page" href="/packages/%s?O=%d#comments">Last &raquo;</a>`, p.Name, last)
		b.WriteString(`</p>`)
	}
	b.WriteString(`</div>`)
	end := min(offset+CommentsPerPage, len(p.Comments))
	if offset < end {
		for _, c := range p.Comments[offset:end] {
			writeComment(&b, c)
		}
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func writeComment(b *strings.Builder, c models.Comment) {
	fmt.Fprintf(b, "<h4 class=\"comment-header\">\n  <a href=\"/account/x\">%s</a>\n</h4>", html.EscapeString(c.Header))
	fmt.Fprintf(b, "<div class=\"article-content\">\n  <p>%s</p>\n</div>", html.EscapeString(c.Content))
}

// Server serves listing and detail pages for a fixed package set.
type Server struct {
	*httptest.Server

	// PerPage is the listing page size used when a request has no PP parameter.
	PerPage int

	pkgs  []Package
	index map[string]Package

	mu   sync.Mutex
	fail map[string]int
	hits map[string]int
}

// NewServer starts a server for pkgs. Close it when done.
func NewServer(pkgs []Package) *Server {
	s := &Server{
		PerPage: 250,
		pkgs:    pkgs,
		index:   make(map[string]Package, len(pkgs)),
		fail:    make(map[string]int),
		hits:    make(map[string]int),
	}
	for _, p := range pkgs {
		s.index[p.Name] = p
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// FailWith makes requests whose RequestURI equals uri answer with status.
func (s *Server) FailWith(uri string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[uri] = status
}

// Hits returns how often uri was requested.
func (s *Server) Hits(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri]
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.RequestURI()]++
	status, failing := s.fail[r.URL.RequestURI()]
	s.mu.Unlock()
	if failing {
		http.Error(w, "injected failure", status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	offset, _ := strconv.Atoi(r.URL.Query().Get("O"))
	switch {
	case r.URL.Path == "/packages" || r.URL.Path == "/packages/":
		perPage := s.PerPage
		if pp, err := strconv.Atoi(r.URL.Query().Get("PP")); err == nil && pp > 0 {
			perPage = pp
		}
		start := min(offset, len(s.pkgs))
		end := min(start+perPage, len(s.pkgs))
		_, _ = w.Write([]byte(ListingHTML(s.pkgs[start:end])))
	case strings.HasPrefix(r.URL.Path, "/packages/"):
		p, ok := s.index[strings.TrimPrefix(r.URL.Path, "/packages/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(DetailHTML(p, offset)))
	default:
		http.NotFound(w, r)
	}
}
