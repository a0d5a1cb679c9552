// Package textutil converts scraped HTML fragments into plain text.
package textutil

import (
	"strings"

	"golang.org/x/net/html"
)

// StripTags returns the text content of an HTML fragment. Each source line is
// trimmed and the lines are concatenated, markup is removed, and any
// non-ASCII character is dropped.
func StripTags(fragment string) string {
	var joined strings.Builder
	for _, line := range strings.Split(fragment, "\n") {
		joined.WriteString(strings.TrimSpace(line))
	}

	var out strings.Builder
	z := html.NewTokenizer(strings.NewReader(joined.String()))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out.String()
		case html.TextToken:
			writeASCII(&out, string(z.Text()))
		}
	}
}

func writeASCII(b *strings.Builder, s string) {
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
}
