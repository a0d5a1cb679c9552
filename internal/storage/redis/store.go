// Package redis stores items as a family of hashes, sorted sets and lists.
//
// Layout for an item named N:
//
//	items:N              hash of basic and additional fields
//	items:N:cmnts        sorted set of comment indices, score = position
//	items:N:cmnts:<i>    hash with header and content
//	items:N:deps         sorted set of dependency group names, score = position
//	items:N:deps:<group> list of package names
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
)

const (
	backendName = "redis"
	keyPrefix   = "items:"

	// connectionTimeout bounds the initial ping.
	connectionTimeout = 5 * time.Second

	// maxTxAttempts bounds how often Insert restarts after a watched key changed.
	maxTxAttempts = 10
)

// Hash field names. Listing and detail popularity share a hash so the detail
// value gets its own field.
const (
	fieldName           = "name"
	fieldVersion        = "version"
	fieldDetailPath     = "path_to_additional_data"
	fieldVotes          = "votes"
	fieldPopularity     = "popularity"
	fieldDescription    = "description"
	fieldMaintainer     = "maintainer"
	fieldLastUpdated    = "last_updated"
	fieldGitCloneURL    = "git_clone_url"
	fieldKeywords       = "keywords"
	fieldLicense        = "license"
	fieldConflicts      = "conflicts"
	fieldProvides       = "provides"
	fieldSubmitter      = "submitter"
	fieldAddPopularity  = "additional_popularity"
	fieldFirstSubmitted = "first_submitted"
	fieldHeader         = "header"
	fieldContent        = "content"
)

// ErrEmptyURL is returned when no connection URL is configured.
var ErrEmptyURL = errors.New("redis url is required")

// Config holds Redis connection configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection string.
	URL string
}

// Store implements storage.Storage on top of a go-redis client.
type Store struct {
	client redis.UniversalClient
}

// New parses cfg.URL, connects and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Unavailable(backendName, fmt.Errorf("redis ping failed: %w", err))
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client. The caller hands over ownership.
func NewWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func itemKey(name string) string { return keyPrefix + name }

func commentsKey(name string) string { return itemKey(name) + ":cmnts" }

func commentKey(name, idx string) string { return commentsKey(name) + ":" + idx }

func depsKey(name string) string { return itemKey(name) + ":deps" }

func depKey(name, group string) string { return depsKey(name) + ":" + group }

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage.Unavailable(backendName, err)
	}
	return nil
}

// Insert replaces every key of the item in one MULTI/EXEC transaction. The
// companion index sets are watched, so a concurrent insert of the same name
// makes the transaction start over instead of leaving orphaned sub-keys.
func (s *Store) Insert(ctx context.Context, item models.Item) error {
	name := item.Name()
	var err error
	for range maxTxAttempts {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			return replaceItem(ctx, tx, item)
		}, commentsKey(name), depsKey(name))
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return wrap("insert", name, err)
	}
	return nil
}

func replaceItem(ctx context.Context, tx *redis.Tx, item models.Item) error {
	name := item.Name()
	oldComments, err := tx.ZRange(ctx, commentsKey(name), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read comment index: %w", err)
	}
	oldGroups, err := tx.ZRange(ctx, depsKey(name), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read dependency index: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		stale := []string{itemKey(name), commentsKey(name), depsKey(name)}
		for _, idx := range oldComments {
			stale = append(stale, commentKey(name, idx))
		}
		for _, group := range oldGroups {
			stale = append(stale, depKey(name, group))
		}
		pipe.Del(ctx, stale...)

		pipe.HSet(ctx, itemKey(name), itemFields(item))
		for i, c := range item.Comments {
			idx := strconv.Itoa(i)
			pipe.HSet(ctx, commentKey(name, idx), fieldHeader, c.Header, fieldContent, c.Content)
			pipe.ZAdd(ctx, commentsKey(name), redis.Z{Score: float64(i), Member: idx})
		}
		for i, dep := range item.Dependencies {
			pipe.ZAdd(ctx, depsKey(name), redis.Z{Score: float64(i), Member: dep.Group})
			if len(dep.Packages) == 0 {
				continue
			}
			values := make([]any, len(dep.Packages))
			for j, pkg := range dep.Packages {
				values[j] = pkg
			}
			pipe.RPush(ctx, depKey(name, dep.Group), values...)
		}
		return nil
	})
	return err //nolint:wrapcheck // wrapped by Insert
}

// Get rebuilds the item from its hash and companion keys.
func (s *Store) Get(ctx context.Context, name string) (models.Item, error) {
	fields, err := s.client.HGetAll(ctx, itemKey(name)).Result()
	if err != nil {
		return models.Item{}, wrap("get", name, err)
	}
	if len(fields) == 0 {
		return models.Item{}, storage.NotFound(backendName, name)
	}
	item, err := itemFromFields(fields)
	if err != nil {
		return models.Item{}, storage.Decode(backendName, name, err)
	}

	indices, err := s.client.ZRange(ctx, commentsKey(name), 0, -1).Result()
	if err != nil {
		return models.Item{}, wrap("read comment index", name, err)
	}
	groups, err := s.client.ZRange(ctx, depsKey(name), 0, -1).Result()
	if err != nil {
		return models.Item{}, wrap("read dependency index", name, err)
	}

	commentCmds := make([]*redis.MapStringStringCmd, len(indices))
	depCmds := make([]*redis.StringSliceCmd, len(groups))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, idx := range indices {
			commentCmds[i] = pipe.HGetAll(ctx, commentKey(name, idx))
		}
		for i, group := range groups {
			depCmds[i] = pipe.LRange(ctx, depKey(name, group), 0, -1)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Item{}, wrap("read sub-keys", name, err)
	}

	item.Comments = make([]models.Comment, len(indices))
	for i, cmd := range commentCmds {
		h := cmd.Val()
		item.Comments[i] = models.Comment{Header: h[fieldHeader], Content: h[fieldContent]}
	}
	item.Dependencies = make([]models.Dependency, len(groups))
	for i, cmd := range depCmds {
		packages := cmd.Val()
		if packages == nil {
			packages = []string{}
		}
		item.Dependencies[i] = models.Dependency{Group: groups[i], Packages: packages}
	}
	return item, nil
}

// BackendName returns "redis".
func (s *Store) BackendName() string { return backendName }

// Close closes the client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func itemFields(item models.Item) map[string]any {
	b, a := item.Basic, item.Additional
	return map[string]any{
		fieldName:           b.Name,
		fieldVersion:        b.Version,
		fieldDetailPath:     b.DetailPath,
		fieldVotes:          strconv.Itoa(b.Votes),
		fieldPopularity:     formatFloat(b.Popularity),
		fieldDescription:    b.Description,
		fieldMaintainer:     b.Maintainer,
		fieldLastUpdated:    b.LastUpdated,
		fieldGitCloneURL:    a.GitCloneURL,
		fieldKeywords:       a.Keywords,
		fieldLicense:        a.License,
		fieldConflicts:      a.Conflicts,
		fieldProvides:       a.Provides,
		fieldSubmitter:      a.Submitter,
		fieldAddPopularity:  formatFloat(a.Popularity),
		fieldFirstSubmitted: a.FirstSubmitted,
	}
}

func itemFromFields(h map[string]string) (models.Item, error) {
	votes, err := strconv.Atoi(h[fieldVotes])
	if err != nil {
		return models.Item{}, fmt.Errorf("field %s: %w", fieldVotes, err)
	}
	popularity, err := strconv.ParseFloat(h[fieldPopularity], 64)
	if err != nil {
		return models.Item{}, fmt.Errorf("field %s: %w", fieldPopularity, err)
	}
	addPopularity, err := strconv.ParseFloat(h[fieldAddPopularity], 64)
	if err != nil {
		return models.Item{}, fmt.Errorf("field %s: %w", fieldAddPopularity, err)
	}
	return models.Item{
		Basic: models.BasicData{
			Name:        h[fieldName],
			Version:     h[fieldVersion],
			DetailPath:  h[fieldDetailPath],
			Votes:       votes,
			Popularity:  popularity,
			Description: h[fieldDescription],
			Maintainer:  h[fieldMaintainer],
			LastUpdated: h[fieldLastUpdated],
		},
		Additional: models.AdditionalData{
			GitCloneURL:    h[fieldGitCloneURL],
			Keywords:       h[fieldKeywords],
			License:        h[fieldLicense],
			Conflicts:      h[fieldConflicts],
			Provides:       h[fieldProvides],
			Submitter:      h[fieldSubmitter],
			Popularity:     addPopularity,
			FirstSubmitted: h[fieldFirstSubmitted],
		},
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func wrap(op, name string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.Unavailable(backendName, fmt.Errorf("%s %q: %w", op, name, err))
	}
	return fmt.Errorf("redis %s %q: %w", op, name, err)
}
