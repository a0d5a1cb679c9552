// Package models defines the normalized package records assembled by the crawler.
package models

import (
	"errors"
	"strconv"
	"strings"
)

// BasicData holds the summary fields of one listing row.
type BasicData struct {
	Name        string  `bson:"name" json:"name"`
	Version     string  `bson:"version" json:"version"`
	DetailPath  string  `bson:"path_to_additional_data" json:"path_to_additional_data"`
	Votes       int     `bson:"votes" json:"votes"`
	Popularity  float64 `bson:"popularity" json:"popularity"`
	Description string  `bson:"description" json:"description"`
	Maintainer  string  `bson:"maintainer" json:"maintainer"`
	LastUpdated string  `bson:"last_updated" json:"last_updated"`
}

// AdditionalData holds attributes scraped from a package detail page.
type AdditionalData struct {
	GitCloneURL    string  `bson:"git_clone_url" json:"git_clone_url"`
	Keywords       string  `bson:"keywords" json:"keywords"`
	License        string  `bson:"license" json:"license"`
	Conflicts      string  `bson:"confilcts" json:"conflicts"`
	Provides       string  `bson:"provides" json:"provides"`
	Submitter      string  `bson:"submitter" json:"submitter"`
	Popularity     float64 `bson:"popularity" json:"popularity"`
	FirstSubmitted string  `bson:"first_submitted" json:"first_submitted"`
}

// Dependency is one named dependency group and its member packages.
type Dependency struct {
	Group    string   `bson:"group" json:"group"`
	Packages []string `bson:"packages" json:"packages"`
}

// Comment is one HTML-stripped comment from a package thread.
type Comment struct {
	Header  string `bson:"header" json:"header"`
	Content string `bson:"content" json:"content"`
}

// Item is the fully assembled record for one package.
type Item struct {
	Basic        BasicData      `bson:"basic" json:"basic"`
	Additional   AdditionalData `bson:"additional" json:"additional"`
	Dependencies []Dependency   `bson:"dependencies" json:"dependencies"`
	Comments     []Comment      `bson:"comments" json:"comments"`
}

// Name returns the natural key of the item.
func (i Item) Name() string {
	return i.Basic.Name
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	out := i
	if i.Dependencies != nil {
		out.Dependencies = make([]Dependency, len(i.Dependencies))
		for idx, dep := range i.Dependencies {
			out.Dependencies[idx] = Dependency{
				Group:    dep.Group,
				Packages: append([]string(nil), dep.Packages...),
			}
		}
	}
	if i.Comments != nil {
		out.Comments = append([]Comment(nil), i.Comments...)
	}
	return out
}

// WithName returns a copy of the item renamed to name.
func (i Item) WithName(name string) Item {
	out := i.Clone()
	out.Basic.Name = name
	return out
}

// basicFieldOrder is the positional contract with the listing table layout.
var basicFieldOrder = []string{
	"name",
	"path_to_additional_data",
	"version",
	"votes",
	"popularity",
	"description",
	"maintainer",
	"last_updated",
}

// BasicFieldCount is the number of positional fields NewBasicData consumes.
var BasicFieldCount = len(basicFieldOrder)

// NewBasicData builds BasicData from the positional fields of one listing row.
// Extra trailing fields are ignored.
func NewBasicData(fields []string) (BasicData, error) {
	if len(fields) < len(basicFieldOrder) {
		return BasicData{}, missing(basicFieldOrder[len(fields)])
	}

	votes, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return BasicData{}, invalid("votes", err)
	}
	if votes < 0 {
		return BasicData{}, invalid("votes", errors.New("must be >= 0"))
	}
	popularity, err := parseFloat(fields[4])
	if err != nil {
		return BasicData{}, invalid("popularity", err)
	}

	return BasicData{
		Name:        fields[0],
		DetailPath:  NormalizeDetailPath(fields[1]),
		Version:     fields[2],
		Votes:       votes,
		Popularity:  popularity,
		Description: fields[5],
		Maintainer:  fields[6],
		LastUpdated: fields[7],
	}, nil
}

// NormalizeDetailPath drops everything up to and including the last '/'.
func NormalizeDetailPath(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// NewAdditionalData builds AdditionalData from the normalized key/value bag of a detail page.
func NewAdditionalData(fields map[string]string) (AdditionalData, error) {
	gitCloneURL, ok := fields["gitcloneurl"]
	if !ok {
		return AdditionalData{}, missing("git_clone_url")
	}
	submitter, ok := fields["submitter"]
	if !ok {
		return AdditionalData{}, missing("submitter")
	}
	rawPopularity, ok := fields["popularity"]
	if !ok {
		return AdditionalData{}, missing("popularity")
	}
	popularity, err := parseFloat(rawPopularity)
	if err != nil {
		return AdditionalData{}, invalid("popularity", err)
	}
	firstSubmitted, ok := fields["firstsubmitted"]
	if !ok {
		return AdditionalData{}, missing("first_submitted")
	}

	license := fields["licenses"]
	if license == "" {
		license = fields["license"]
	}

	return AdditionalData{
		GitCloneURL:    gitCloneURL,
		Keywords:       fields["keywords"],
		License:        license,
		Conflicts:      fields["conflicts"],
		Provides:       fields["provides"],
		Submitter:      submitter,
		Popularity:     popularity,
		FirstSubmitted: firstSubmitted,
	}, nil
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err //nolint:wrapcheck // wrapped by the caller's FieldError
	}
	return v, nil
}
