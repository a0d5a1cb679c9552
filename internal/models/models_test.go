package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBasicFields() []string {
	return []string{
		"yay",
		"/packages/yay",
		"12.3.5-1",
		"2188",
		"26.54",
		"Yet another yogurt.",
		"jguer",
		"2024-03-01 10:00 (UTC)",
	}
}

func TestNewBasicData(t *testing.T) {
	t.Parallel()

	got, err := NewBasicData(validBasicFields())
	require.NoError(t, err)
	assert.Equal(t, BasicData{
		Name:        "yay",
		DetailPath:  "yay",
		Version:     "12.3.5-1",
		Votes:       2188,
		Popularity:  26.54,
		Description: "Yet another yogurt.",
		Maintainer:  "jguer",
		LastUpdated: "2024-03-01 10:00 (UTC)",
	}, got)
}

func TestNewBasicDataIgnoresExtraFields(t *testing.T) {
	t.Parallel()

	fields := append(validBasicFields(), "/account/jguer")
	got, err := NewBasicData(fields)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 10:00 (UTC)", got.LastUpdated)
}

func TestNewBasicDataMissingField(t *testing.T) {
	t.Parallel()

	full := validBasicFields()
	for n := 0; n < len(full); n++ {
		_, err := NewBasicData(full[:n])
		require.Error(t, err, "n=%d", n)
		require.True(t, errors.Is(err, ErrMissingField))
		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, basicFieldOrder[n], fieldErr.Field)
	}
}

func TestNewBasicDataInvalidNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		index int
		value string
		field string
	}{
		{name: "votes not a number", index: 3, value: "many", field: "votes"},
		{name: "negative votes", index: 3, value: "-1", field: "votes"},
		{name: "popularity not a number", index: 4, value: "hot", field: "popularity"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fields := validBasicFields()
			fields[tc.index] = tc.value
			_, err := NewBasicData(fields)
			require.ErrorIs(t, err, ErrInvalidField)
			assert.NotErrorIs(t, err, ErrMissingField)
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tc.field, fieldErr.Field)
		})
	}
}

func TestNewBasicDataZeroPopularity(t *testing.T) {
	t.Parallel()

	fields := validBasicFields()
	fields[3] = "0"
	fields[4] = "0.00"
	got, err := NewBasicData(fields)
	require.NoError(t, err)
	assert.Zero(t, got.Votes)
	assert.Zero(t, got.Popularity)
}

func TestNormalizeDetailPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/packages/yay":  "yay",
		"packages/yay/":  "",
		"yay":            "yay",
		"/yay":           "yay",
		"a/b/c/trailing": "trailing",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDetailPath(in), in)
	}
}

func validAdditionalFields() map[string]string {
	return map[string]string{
		"gitcloneurl":    "https://aur.archlinux.org/yay.git",
		"submitter":      "jguer",
		"popularity":     "26.54",
		"firstsubmitted": "2016-10-05 17:20 (UTC)",
	}
}

func TestNewAdditionalDataDefaultsOptionalFields(t *testing.T) {
	t.Parallel()

	got, err := NewAdditionalData(validAdditionalFields())
	require.NoError(t, err)
	assert.Equal(t, AdditionalData{
		GitCloneURL:    "https://aur.archlinux.org/yay.git",
		Submitter:      "jguer",
		Popularity:     26.54,
		FirstSubmitted: "2016-10-05 17:20 (UTC)",
	}, got)
}

func TestNewAdditionalDataOptionalFields(t *testing.T) {
	t.Parallel()

	fields := validAdditionalFields()
	fields["keywords"] = "aur,helper"
	fields["licenses"] = "GPL-3.0-or-later"
	fields["conflicts"] = "yay-bin"
	fields["provides"] = "yay"

	got, err := NewAdditionalData(fields)
	require.NoError(t, err)
	assert.Equal(t, "aur,helper", got.Keywords)
	assert.Equal(t, "GPL-3.0-or-later", got.License)
	assert.Equal(t, "yay-bin", got.Conflicts)
	assert.Equal(t, "yay", got.Provides)
}

func TestNewAdditionalDataRequiredFields(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"gitcloneurl":    "git_clone_url",
		"submitter":      "submitter",
		"popularity":     "popularity",
		"firstsubmitted": "first_submitted",
	}
	for key, field := range tests {
		fields := validAdditionalFields()
		delete(fields, key)
		_, err := NewAdditionalData(fields)
		require.ErrorIs(t, err, ErrMissingField, key)
		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, field, fieldErr.Field)
	}
}

func TestNewAdditionalDataInvalidPopularity(t *testing.T) {
	t.Parallel()

	fields := validAdditionalFields()
	fields["popularity"] = "n/a"
	_, err := NewAdditionalData(fields)
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestItemCloneIsDeep(t *testing.T) {
	t.Parallel()

	item := Item{
		Basic:        BasicData{Name: "Test"},
		Dependencies: []Dependency{{Group: "abc", Packages: []string{"aaa"}}},
		Comments:     []Comment{{Header: "h", Content: "c"}},
	}
	dup := item.WithName("Test_1")
	dup.Dependencies[0].Packages[0] = "zzz"
	dup.Comments[0].Header = "changed"

	assert.Equal(t, "Test", item.Name())
	assert.Equal(t, "Test_1", dup.Name())
	assert.Equal(t, "aaa", item.Dependencies[0].Packages[0])
	assert.Equal(t, "h", item.Comments[0].Header)
}
