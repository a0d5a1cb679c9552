// Package elastic stores each item as one Elasticsearch document keyed by name.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/JakeFAU/aur-crawler/internal/models"
	"github.com/JakeFAU/aur-crawler/internal/storage"
)

const (
	backendName = "elasticsearch"

	// DefaultIndex is the namespace "aur" joined with the database "packages".
	DefaultIndex = "aur_packages"

	errTypeIndexExists = "resource_already_exists_exception"

	// connectionTimeout bounds the initial ping.
	connectionTimeout = 5 * time.Second
)

// indexMapping keeps names exact-match searchable.
const indexMapping = `{
  "mappings": {
    "properties": {
      "basic": {
        "properties": {
          "name": {"type": "keyword"},
          "maintainer": {"type": "keyword"}
        }
      }
    }
  }
}`

// Config holds Elasticsearch connection configuration.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	Index      string
	MaxRetries int
	Transport  http.RoundTripper
}

// Store implements storage.Storage on an Elasticsearch index.
type Store struct {
	client *es.Client
	index  string
}

// responseError carries the status and error type from an Elasticsearch reply.
type responseError struct {
	Op     string
	Status int
	Type   string
	Reason string
}

func (e *responseError) Error() string {
	return fmt.Sprintf("elasticsearch %s returned [%d] %s: %s", e.Op, e.Status, e.Type, e.Reason)
}

// New creates a client, pings the cluster and ensures the index exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addresses := make([]string, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			addr = "http://" + addr
		}
		addresses = append(addresses, addr)
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("storage.elasticsearch address is required")
	}
	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}

	client, err := es.NewClient(es.Config{
		Addresses:  addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
		Transport:  cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	s := &Store{client: client, index: index}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := s.HealthCheck(pingCtx); err != nil {
		return nil, err
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Index returns the index name documents are written to.
func (s *Store) Index() string { return s.index }

// EnsureIndex creates the index, tolerating one that already exists.
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return storage.Unavailable(backendName, fmt.Errorf("create index: %w", err))
	}
	err = storage.IgnoreAlreadyExists(checkResponse("create index", res), isIndexExists)
	if err != nil {
		return fmt.Errorf("ensure index %q: %w", s.index, err)
	}
	return nil
}

func isIndexExists(err error) bool {
	var respErr *responseError
	return errors.As(err, &respErr) && respErr.Type == errTypeIndexExists
}

// HealthCheck pings the cluster.
func (s *Store) HealthCheck(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return storage.Unavailable(backendName, err)
	}
	if err := checkResponse("ping", res); err != nil {
		return storage.Unavailable(backendName, err)
	}
	return nil
}

// Insert creates the document and overwrites it when it already exists.
func (s *Store) Insert(ctx context.Context, item models.Item) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", item.Name(), err)
	}

	res, err := s.client.Create(s.index, item.Name(), bytes.NewReader(body),
		s.client.Create.WithContext(ctx),
	)
	if err != nil {
		return storage.Unavailable(backendName, fmt.Errorf("create %q: %w", item.Name(), err))
	}
	err = checkResponse("create", res)
	if err == nil {
		return nil
	}
	var respErr *responseError
	if !errors.As(err, &respErr) || respErr.Status != http.StatusConflict {
		return fmt.Errorf("insert %q: %w", item.Name(), err)
	}

	res, err = s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(item.Name()),
	)
	if err != nil {
		return storage.Unavailable(backendName, fmt.Errorf("overwrite %q: %w", item.Name(), err))
	}
	if err := checkResponse("index", res); err != nil {
		return fmt.Errorf("overwrite %q: %w", item.Name(), err)
	}
	return nil
}

type getResponse struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

// Get reads the document stored under name.
func (s *Store) Get(ctx context.Context, name string) (models.Item, error) {
	res, err := s.client.Get(s.index, name, s.client.Get.WithContext(ctx))
	if err != nil {
		return models.Item{}, storage.Unavailable(backendName, fmt.Errorf("get %q: %w", name, err))
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode == http.StatusNotFound {
		return models.Item{}, storage.NotFound(backendName, name)
	}
	if res.IsError() {
		return models.Item{}, fmt.Errorf("get %q: %w", name, decodeError("get", res))
	}

	var doc getResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return models.Item{}, storage.Decode(backendName, name, err)
	}
	if !doc.Found {
		return models.Item{}, storage.NotFound(backendName, name)
	}
	var item models.Item
	if err := json.Unmarshal(doc.Source, &item); err != nil {
		return models.Item{}, storage.Decode(backendName, name, err)
	}
	return item, nil
}

// BackendName returns "elasticsearch".
func (s *Store) BackendName() string { return backendName }

// Close is a no-op; the client holds no long-lived resources beyond its transport.
func (s *Store) Close() error { return nil }

// checkResponse drains and closes res, returning a *responseError for non-2xx replies.
func checkResponse(op string, res *esapi.Response) error {
	defer func() {
		_ = res.Body.Close()
	}()
	if !res.IsError() {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeError(op, res)
}

func decodeError(op string, res *esapi.Response) error {
	var payload struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(res.Body)
	_ = json.Unmarshal(body, &payload)
	reason := payload.Error.Reason
	if reason == "" {
		reason = string(body)
	}
	return &responseError{Op: op, Status: res.StatusCode, Type: payload.Error.Type, Reason: reason}
}
