package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
)

func sampleItem() models.Item {
	return models.Item{
		Basic: models.BasicData{
			Name: "Test", Version: "1.0-1", DetailPath: "Test", Votes: 12, Popularity: 0.25,
			Description: "desc", Maintainer: "alice", LastUpdated: "2024-01-01 00:00",
		},
		Additional: models.AdditionalData{
			GitCloneURL: "https://aur.archlinux.org/Test.git", License: "MIT",
			Submitter: "bob", Popularity: 0.3, FirstSubmitted: "2020-01-01 00:00",
		},
		Dependencies: []models.Dependency{{Group: "abc", Packages: []string{"aaa", "bbb", "ccc"}}},
		Comments:     []models.Comment{{Header: "h0", Content: "c0"}, {Header: "h1", Content: "c1"}},
	}
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return s, mock
}

func TestCreateTablesToleratesExisting(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(q("CREATE SCHEMA pkgs")).WillReturnError(&pgconn.PgError{Code: codeDuplicateSchema})
	mock.ExpectExec(q("CREATE TABLE pkgs.basic")).WillReturnError(&pgconn.PgError{Code: codeDuplicateTable})
	mock.ExpectExec(q("CREATE TABLE pkgs.additional")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE pkgs.comments")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(q("CREATE TABLE pkgs.dependencies")).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.CreateTables(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTablesPropagatesOtherErrors(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	denied := &pgconn.PgError{Code: "42501", Message: "permission denied"}
	mock.ExpectExec(q("CREATE SCHEMA pkgs")).WillReturnError(denied)

	err := s.CreateTables(context.Background())
	require.Error(t, err)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42501", pgErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRunsOneTransaction(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	item := sampleItem()
	b, a := item.Basic, item.Additional

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO pkgs.basic")).
		WithArgs(b.Name, b.Version, b.DetailPath, b.Votes, b.Popularity, b.Description, b.Maintainer, b.LastUpdated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("INSERT INTO pkgs.additional")).
		WithArgs(b.Name, a.GitCloneURL, a.Keywords, a.License, a.Conflicts, a.Provides, a.Submitter, a.Popularity, a.FirstSubmitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("DELETE FROM pkgs.comments")).WithArgs("Test").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(q("INSERT INTO pkgs.comments")).WithArgs("Test", 0, "h0", "c0").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("INSERT INTO pkgs.comments")).WithArgs("Test", 1, "h1", "c1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("DELETE FROM pkgs.dependencies")).WithArgs("Test").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(q("INSERT INTO pkgs.dependencies")).WithArgs("Test", "abc", 0, []string{"aaa", "bbb", "ccc"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Insert(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO pkgs.basic")).WillReturnError(boom)
	mock.ExpectRollback()

	err := s.Insert(context.Background(), sampleItem())
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRebuildsItem(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	item := sampleItem()
	b, a := item.Basic, item.Additional

	mock.ExpectQuery(q("FROM pkgs.basic")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"name", "version", "path_to_additional_data", "votes", "popularity", "description", "maintainer", "last_updated"}).
			AddRow(b.Name, b.Version, b.DetailPath, b.Votes, b.Popularity, b.Description, b.Maintainer, b.LastUpdated))
	mock.ExpectQuery(q("FROM pkgs.additional")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"git_clone_url", "keywords", "license", "conflicts", "provides", "submitter", "popularity", "first_submitted"}).
			AddRow(a.GitCloneURL, a.Keywords, a.License, a.Conflicts, a.Provides, a.Submitter, a.Popularity, a.FirstSubmitted))
	mock.ExpectQuery(q("FROM pkgs.comments")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"header", "content"}).AddRow("h0", "c0").AddRow("h1", "c1"))
	mock.ExpectQuery(q("FROM pkgs.dependencies")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"grp", "packages"}).AddRow("abc", []string{"aaa", "bbb", "ccc"}))

	got, err := s.Get(context.Background(), "Test")
	require.NoError(t, err)
	assert.Equal(t, item, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWithoutCommentsOrDependencies(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	item := sampleItem()
	item.Comments = []models.Comment{}
	item.Dependencies = []models.Dependency{}
	b, a := item.Basic, item.Additional

	mock.ExpectQuery(q("FROM pkgs.basic")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"name", "version", "path_to_additional_data", "votes", "popularity", "description", "maintainer", "last_updated"}).
			AddRow(b.Name, b.Version, b.DetailPath, b.Votes, b.Popularity, b.Description, b.Maintainer, b.LastUpdated))
	mock.ExpectQuery(q("FROM pkgs.additional")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"git_clone_url", "keywords", "license", "conflicts", "provides", "submitter", "popularity", "first_submitted"}).
			AddRow(a.GitCloneURL, a.Keywords, a.License, a.Conflicts, a.Provides, a.Submitter, a.Popularity, a.FirstSubmitted))
	mock.ExpectQuery(q("FROM pkgs.comments")).WithArgs("Test").WillReturnRows(pgxmock.NewRows([]string{"header", "content"}))
	mock.ExpectQuery(q("FROM pkgs.dependencies")).WithArgs("Test").WillReturnRows(pgxmock.NewRows([]string{"grp", "packages"}))

	got, err := s.Get(context.Background(), "Test")
	require.NoError(t, err)
	assert.Equal(t, item, got)
	assert.NotNil(t, got.Comments)
	assert.NotNil(t, got.Dependencies)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM pkgs.basic")).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingAdditionalIsDecodeError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	b := sampleItem().Basic
	mock.ExpectQuery(q("FROM pkgs.basic")).WithArgs("Test").WillReturnRows(
		pgxmock.NewRows([]string{"name", "version", "path_to_additional_data", "votes", "popularity", "description", "maintainer", "last_updated"}).
			AddRow(b.Name, b.Version, b.DetailPath, b.Votes, b.Popularity, b.Description, b.Maintainer, b.LastUpdated))
	mock.ExpectQuery(q("FROM pkgs.additional")).WithArgs("Test").WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "Test")
	require.ErrorIs(t, err, storage.ErrDecode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	s, err := NewWithPool(mock, "")
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	require.NoError(t, s.HealthCheck(context.Background()))
	require.ErrorIs(t, s.HealthCheck(context.Background()), storage.ErrBackendUnavailable)
}

func TestSchemaValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad;drop")
	require.Error(t, err)
	_, err = NewWithPool(nil, "")
	require.Error(t, err)

	s, err := NewWithPool(mock, "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom.basic", s.table("basic"))
}
