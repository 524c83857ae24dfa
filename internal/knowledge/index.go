// Package knowledge provides scored snippet search over a local
// document collection, backed by an in-process bleve index.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"
)

// Config holds local knowledge base configuration.
type Config struct {
	// DocsDir is scanned at startup for .txt and .md documents. Empty
	// means start with an empty index.
	DocsDir string `koanf:"docs_dir"`

	// SnippetLength caps snippet size in characters.
	SnippetLength int `koanf:"snippet_length"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		DocsDir:       "",
		SnippetLength: 400,
	}
}

// Result is one scored snippet from the local knowledge base.
type Result struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Index is a bleve-backed document index.
type Index struct {
	idx    bleve.Index
	cfg    Config
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewIndex builds an in-memory index and, if DocsDir is set, ingests
// every .txt and .md file under it. Unreadable files are skipped with a
// warning rather than failing startup.
func NewIndex(cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultConfig().SnippetLength
	}

	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating knowledge index: %w", err)
	}

	k := &Index{
		idx:    idx,
		cfg:    cfg,
		logger: logger,
	}

	if cfg.DocsDir != "" {
		if err := k.ingestDir(cfg.DocsDir); err != nil {
			idx.Close()
			return nil, err
		}
	}

	return k, nil
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("body", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

func (k *Index) ingestDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading knowledge directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			k.logger.Warn("skipping unreadable document",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		title := strings.TrimSuffix(entry.Name(), ext)
		if err := k.AddDocument(title, string(data)); err != nil {
			k.logger.Warn("skipping unindexable document",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

// AddDocument indexes one document under the given title. Re-adding the
// same title replaces the previous version.
func (k *Index) AddDocument(title, body string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("document title cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	doc := map[string]any{
		"title": title,
		"body":  body,
	}
	if err := k.idx.Index(title, doc); err != nil {
		return fmt.Errorf("indexing document %q: %w", title, err)
	}
	return nil
}

// Search runs a BM25 match query and returns up to maxResults scored
// snippets. An empty query or empty index returns nil, nil.
func (k *Index) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), maxResults, 0, false)
	req.Fields = []string{"title", "body"}

	res, err := k.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge index: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		title, _ := hit.Fields["title"].(string)
		body, _ := hit.Fields["body"].(string)
		results = append(results, Result{
			Title:   title,
			Snippet: snippet(body, k.cfg.SnippetLength),
			Score:   hit.Score,
		})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (k *Index) Count() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.idx.DocCount()
}

// Close releases the index.
func (k *Index) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.idx.Close()
}

// snippet cuts body at the last word boundary before max characters.
func snippet(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := body[:max]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
