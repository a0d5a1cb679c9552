// Package postgres stores items across four relational tables in one schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
)

const (
	backendName = "postgres"

	// DefaultSchema holds the basic, additional, comments and dependencies tables.
	DefaultSchema = "pkgs"

	codeDuplicateSchema = "42P06"
	codeDuplicateTable  = "42P07"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements storage.Storage on Postgres.
type Store struct {
	pool   Pool
	schema string
}

// New connects, pings and creates the schema if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres dsn is required")
	}
	schema, err := schemaName(cfg.Schema)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storage.Unavailable(backendName, fmt.Errorf("connect postgres: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable(backendName, fmt.Errorf("ping postgres: %w", err))
	}
	s := &Store{pool: pool, schema: schema}
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
// It does not create tables.
func NewWithPool(pool Pool, schema string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := schemaName(schema)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, schema: name}, nil
}

func schemaName(schema string) (string, error) {
	if schema == "" {
		return DefaultSchema, nil
	}
	if !validIdentifier.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return schema, nil
}

func (s *Store) table(name string) string {
	return s.schema + "." + name
}

// CreateTables creates the schema and its tables, tolerating ones that already exist.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, stmt := range s.ddl() {
		_, err := s.pool.Exec(ctx, stmt)
		if err = storage.IgnoreAlreadyExists(err, isDuplicateObject); err != nil {
			return fmt.Errorf("create postgres tables: %w", err)
		}
	}
	return nil
}

func (s *Store) ddl() []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA %s`, s.schema),
		fmt.Sprintf(`CREATE TABLE %s (
	name TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	path_to_additional_data TEXT NOT NULL,
	votes INTEGER NOT NULL,
	popularity DOUBLE PRECISION NOT NULL,
	description TEXT NOT NULL,
	maintainer TEXT NOT NULL,
	last_updated TEXT NOT NULL
)`, s.table("basic")),
		fmt.Sprintf(`CREATE TABLE %s (
	name TEXT PRIMARY KEY,
	git_clone_url TEXT NOT NULL,
	keywords TEXT NOT NULL,
	license TEXT NOT NULL,
	conflicts TEXT NOT NULL,
	provides TEXT NOT NULL,
	submitter TEXT NOT NULL,
	popularity DOUBLE PRECISION NOT NULL,
	first_submitted TEXT NOT NULL
)`, s.table("additional")),
		fmt.Sprintf(`CREATE TABLE %s (
	name TEXT NOT NULL,
	idx INTEGER NOT NULL,
	header TEXT NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (name, idx)
)`, s.table("comments")),
		fmt.Sprintf(`CREATE TABLE %s (
	name TEXT NOT NULL,
	grp TEXT NOT NULL,
	position INTEGER NOT NULL,
	packages TEXT[] NOT NULL,
	PRIMARY KEY (name, grp)
)`, s.table("dependencies")),
	}
}

func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDuplicateSchema || pgErr.Code == codeDuplicateTable
}

// HealthCheck pings the pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storage.Unavailable(backendName, err)
	}
	return nil
}

// Insert upserts the basic and additional rows and replaces comments and
// dependencies, all in one transaction.
func (s *Store) Insert(ctx context.Context, item models.Item) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Unavailable(backendName, fmt.Errorf("begin tx: %w", err))
	}
	if err := s.insertTx(ctx, tx, item); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("insert %q: %w", item.Name(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %q: %w", item.Name(), err)
	}
	return nil
}

func (s *Store) insertTx(ctx context.Context, tx pgx.Tx, item models.Item) error {
	name := item.Name()
	b, a := item.Basic, item.Additional

	basicSQL := fmt.Sprintf(`
INSERT INTO %s (name, version, path_to_additional_data, votes, popularity, description, maintainer, last_updated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (name) DO UPDATE SET
	version = EXCLUDED.version,
	path_to_additional_data = EXCLUDED.path_to_additional_data,
	votes = EXCLUDED.votes,
	popularity = EXCLUDED.popularity,
	description = EXCLUDED.description,
	maintainer = EXCLUDED.maintainer,
	last_updated = EXCLUDED.last_updated`, s.table("basic"))
	if _, err := tx.Exec(ctx, basicSQL,
		name, b.Version, b.DetailPath, b.Votes, b.Popularity, b.Description, b.Maintainer, b.LastUpdated,
	); err != nil {
		return fmt.Errorf("upsert basic: %w", err)
	}

	additionalSQL := fmt.Sprintf(`
INSERT INTO %s (name, git_clone_url, keywords, license, conflicts, provides, submitter, popularity, first_submitted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (name) DO UPDATE SET
	git_clone_url = EXCLUDED.git_clone_url,
	keywords = EXCLUDED.keywords,
	license = EXCLUDED.license,
	conflicts = EXCLUDED.conflicts,
	provides = EXCLUDED.provides,
	submitter = EXCLUDED.submitter,
	popularity = EXCLUDED.popularity,
	first_submitted = EXCLUDED.first_submitted`, s.table("additional"))
	if _, err := tx.Exec(ctx, additionalSQL,
		name, a.GitCloneURL, a.Keywords, a.License, a.Conflicts, a.Provides, a.Submitter, a.Popularity, a.FirstSubmitted,
	); err != nil {
		return fmt.Errorf("upsert additional: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table("comments")), name); err != nil {
		return fmt.Errorf("clear comments: %w", err)
	}
	commentSQL := fmt.Sprintf(`INSERT INTO %s (name, idx, header, content) VALUES ($1,$2,$3,$4)`, s.table("comments"))
	for i, c := range item.Comments {
		if _, err := tx.Exec(ctx, commentSQL, name, i, c.Header, c.Content); err != nil {
			return fmt.Errorf("insert comment %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table("dependencies")), name); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}
	depSQL := fmt.Sprintf(`INSERT INTO %s (name, grp, position, packages) VALUES ($1,$2,$3,$4)`, s.table("dependencies"))
	for i, dep := range item.Dependencies {
		packages := dep.Packages
		if packages == nil {
			packages = []string{}
		}
		if _, err := tx.Exec(ctx, depSQL, name, dep.Group, i, packages); err != nil {
			return fmt.Errorf("insert dependency %q: %w", dep.Group, err)
		}
	}
	return nil
}

// Get joins the four tables back into an item.
func (s *Store) Get(ctx context.Context, name string) (models.Item, error) {
	var item models.Item
	b := &item.Basic
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT name, version, path_to_additional_data, votes, popularity, description, maintainer, last_updated
FROM %s WHERE name = $1`, s.table("basic")), name).
		Scan(&b.Name, &b.Version, &b.DetailPath, &b.Votes, &b.Popularity, &b.Description, &b.Maintainer, &b.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Item{}, storage.NotFound(backendName, name)
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("select basic %q: %w", name, err)
	}

	a := &item.Additional
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT git_clone_url, keywords, license, conflicts, provides, submitter, popularity, first_submitted
FROM %s WHERE name = $1`, s.table("additional")), name).
		Scan(&a.GitCloneURL, &a.Keywords, &a.License, &a.Conflicts, &a.Provides, &a.Submitter, &a.Popularity, &a.FirstSubmitted)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Item{}, storage.Decode(backendName, name, errors.New("additional row missing"))
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("select additional %q: %w", name, err)
	}

	if item.Comments, err = s.comments(ctx, name); err != nil {
		return models.Item{}, err
	}
	if item.Dependencies, err = s.dependencies(ctx, name); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

func (s *Store) comments(ctx context.Context, name string) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT header, content FROM %s WHERE name = $1 ORDER BY idx`, s.table("comments")), name)
	if err != nil {
		return nil, fmt.Errorf("select comments %q: %w", name, err)
	}
	defer rows.Close()

	out := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.Header, &c.Content); err != nil {
			return nil, storage.Decode(backendName, name, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read comments %q: %w", name, err)
	}
	return out, nil
}

func (s *Store) dependencies(ctx context.Context, name string) ([]models.Dependency, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT grp, packages FROM %s WHERE name = $1 ORDER BY position`, s.table("dependencies")), name)
	if err != nil {
		return nil, fmt.Errorf("select dependencies %q: %w", name, err)
	}
	defer rows.Close()

	out := []models.Dependency{}
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.Group, &d.Packages); err != nil {
			return nil, storage.Decode(backendName, name, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read dependencies %q: %w", name, err)
	}
	return out, nil
}

// BackendName returns "postgres".
func (s *Store) BackendName() string { return backendName }

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
