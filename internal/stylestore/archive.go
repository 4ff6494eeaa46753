// Package stylestore keeps a vector index of each account's published posts
// so the personalizer can borrow the closest one as a writing sample.
package stylestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/veclite"

	"github.com/abdulachik/recast/internal/content"
)

const (
	postsCollection = "published_posts"

	// DefaultSampleSize is the number of nearest posts joined into a sample.
	DefaultSampleSize = 2
)

// Config holds configuration for the Archive.
type Config struct {
	// Path to the VecLite database file (e.g., "data/style.veclite").
	Path string

	// ConfigPath is the veclite.yaml holding the embedder settings. Empty
	// searches ./veclite.yaml and ~/.veclite/config.yaml.
	ConfigPath string

	SampleSize int
}

// Hit is one archived post returned by a search.
type Hit struct {
	Text  string
	Score float32
}

// index is the subset of a veclite collection the archive uses.
type index interface {
	insert(text string, payload map[string]any) error
	search(query, owner string, k int) ([]Hit, error)
	count() int
	sync() error
	close() error
}

// Archive stores published posts keyed by account and platform.
type Archive struct {
	mu         sync.Mutex
	idx        index
	sampleSize int
}

// Open loads the veclite config, builds its embedder and opens the
// collection at cfg.Path, creating it on first use.
func Open(cfg Config) (*Archive, error) {
	vcfg, err := veclite.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load veclite config: %w", err)
	}
	embedder, err := veclite.NewEmbedderFromConfig(vcfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vecdb, err := veclite.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open veclite db: %w", err)
	}

	coll, err := vecdb.CreateCollection(postsCollection,
		veclite.WithDimension(embedder.Dimension()),
		veclite.WithDistanceType(veclite.DistanceCosine),
		veclite.WithHNSW(16, 200),
		veclite.WithTextIndex("text", "owner"),
		veclite.WithEmbedder(embedder),
	)
	if err != nil {
		coll, err = vecdb.GetCollection(postsCollection)
		if err != nil {
			vecdb.Close()
			return nil, fmt.Errorf("get collection: %w", err)
		}
	}

	slog.Debug("opened style archive",
		"path", cfg.Path,
		"provider", vcfg.Embedder.Provider,
		"posts", coll.Count(),
	)
	return newArchive(&vecIndex{db: vecdb, coll: coll}, cfg.SampleSize), nil
}

func newArchive(idx index, sampleSize int) *Archive {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Archive{idx: idx, sampleSize: sampleSize}
}

func owner(accountID string, platform content.Platform) string {
	return accountID + "/" + string(platform)
}

// Add archives one published post.
func (a *Archive) Add(ctx context.Context, accountID string, platform content.Platform, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	payload := map[string]any{
		"owner":    owner(accountID, platform),
		"account":  accountID,
		"platform": string(platform),
		"text":     text,
	}
	if err := a.idx.insert(text, payload); err != nil {
		return fmt.Errorf("archive post: %w", err)
	}
	return nil
}

// Search returns the k archived posts of the account closest to query.
func (a *Archive) Search(ctx context.Context, accountID string, platform content.Platform, query string, k int) ([]Hit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hits, err := a.idx.search(query, owner(accountID, platform), k)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}
	return hits, nil
}

// Sample joins the nearest archived posts into one writing sample. An
// account with no archived posts yields "".
func (a *Archive) Sample(ctx context.Context, accountID string, platform content.Platform, query string) (string, error) {
	hits, err := a.Search(ctx, accountID, platform, query, a.sampleSize)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Text != "" {
			texts = append(texts, h.Text)
		}
	}
	return strings.Join(texts, "\n\n---\n\n"), nil
}

// Count returns the number of archived posts across all accounts.
func (a *Archive) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx.count()
}

// Sync persists pending changes to disk.
func (a *Archive) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx.sync()
}

// Close syncs and closes the archive.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.idx.sync(); err != nil {
		slog.Warn("failed to sync style archive", "error", err)
	}
	return a.idx.close()
}

type vecIndex struct {
	db   *veclite.DB
	coll *veclite.Collection
}

func (v *vecIndex) insert(text string, payload map[string]any) error {
	_, err := v.coll.InsertText(text, payload)
	return err
}

func (v *vecIndex) search(query, owner string, k int) ([]Hit, error) {
	results, err := v.coll.SearchText(query,
		veclite.TopK(k),
		veclite.WithFilter(veclite.Equal("owner", owner)),
	)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		h := Hit{Score: r.Score}
		if text, ok := r.Record.Payload["text"].(string); ok {
			h.Text = text
		}
		if h.Text == "" {
			h.Text = r.Record.Content
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (v *vecIndex) count() int   { return v.coll.Count() }
func (v *vecIndex) sync() error  { return v.db.Sync() }
func (v *vecIndex) close() error { return v.db.Close() }
