// Package checkpoint persists whole listing pages as BSON files on disk.
//
// Each page N lives in page_<N>.bson as a single document {"packages": [...]}.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/JakeFAU/aur-crawler/internal/metrics"
	"github.com/JakeFAU/aur-crawler/internal/models"
)

var pageFile = regexp.MustCompile(`^page_(\d+)\.bson$`)

// document is the on-disk shape of one page.
type document struct {
	Packages []models.Item `bson:"packages"`
}

// Dir reads and writes page files under one directory.
type Dir struct {
	path string
}

// Open prepares dir for checkpoints, creating it when absent.
func Open(dir string) (*Dir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat checkpoint directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("checkpoint path %q is not a directory", dir)
	}
	return &Dir{path: filepath.Clean(dir)}, nil
}

// Path returns the file that holds page.
func (d *Dir) Path(page int) string {
	return filepath.Join(d.path, fmt.Sprintf("page_%d.bson", page))
}

// WritePage encodes items and atomically replaces the page file.
func (d *Dir) WritePage(page int, items []models.Item) (string, error) {
	if items == nil {
		items = []models.Item{}
	}
	data, err := bson.Marshal(document{Packages: items})
	if err != nil {
		return "", fmt.Errorf("encode page %d: %w", page, err)
	}

	tmp, err := os.CreateTemp(d.path, ".page_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write page %d: %w", page, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close page %d: %w", page, err)
	}

	dst := d.Path(page)
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename page %d: %w", page, err)
	}
	metrics.ObserveCheckpoint("write", len(items))
	return dst, nil
}

// ReadPage decodes the items stored for page.
func (d *Dir) ReadPage(page int) ([]models.Item, error) {
	data, err := os.ReadFile(d.Path(page))
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	var doc document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	metrics.ObserveCheckpoint("read", len(doc.Packages))
	return doc.Packages, nil
}

// Pages lists the page numbers present in the directory in ascending order.
func (d *Dir) Pages() ([]int, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list checkpoint directory: %w", err)
	}
	var pages []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFile.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}
