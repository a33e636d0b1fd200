// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package chromem implements store.VectorIndex with the embedded chromem-go
// vector database, for single-node deployments without a Qdrant server.
package chromem

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const payloadKey = "payload"

func init() {
	store.RegisterVectorBackend("chromem", func(cfg *store.VectorConfig) (store.VectorIndex, error) {
		dir := ""
		if cfg.DataDir != "" {
			dir = filepath.Join(cfg.DataDir, "chromem")
		}
		return New(dir, cfg.Collection, cfg.Dimensions)
	})
}

// Compile-time interface check.
var _ store.VectorIndex = (*Index)(nil)

// Index stores points in one chromem collection. chromem normalises
// vectors on insert, so similarities are cosine.
type Index struct {
	db         *chromem.DB
	name       string
	dimensions int

	mu  sync.RWMutex
	col *chromem.Collection
}

// New opens a chromem database. An empty dir keeps everything in memory;
// otherwise the collection is persisted under dir.
func New(dir, collection string, dimensions int) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "opening chromem db: %w", err)
		}
	}
	if collection == "" {
		collection = store.DefaultCollection
	}

	idx := &Index{db: db, name: collection, dimensions: dimensions}
	if err := idx.EnsureCollection(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

// EnsureCollection gets or creates the collection.
func (i *Index) EnsureCollection(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.col != nil {
		return nil
	}

	// No embedding func: vectors are always supplied by the caller.
	col, err := i.db.GetOrCreateCollection(i.name, nil, nil)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "creating chromem collection %s: %w", i.name, err)
	}
	i.col = col
	return nil
}

func (i *Index) collection() *chromem.Collection {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.col
}

// Upsert adds or replaces the document stored under the point key.
func (i *Index) Upsert(ctx context.Context, p store.Point) error {
	if err := i.checkDims(len(p.Vector)); err != nil {
		return err
	}

	meta := map[string]string{}
	if len(p.Payload) > 0 {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return palaiserr.Errorf(palaiserr.CodeStoreInvalidInput, "marshalling payload: %w", err)
		}
		meta[payloadKey] = string(raw)
	}

	// chromem normalises in place; keep the caller's slice untouched.
	vec := append([]float32(nil), p.Vector...)
	doc := chromem.Document{
		ID:        p.Key,
		Content:   p.Key,
		Embedding: vec,
		Metadata:  meta,
	}
	if err := i.collection().AddDocument(ctx, doc); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "adding chromem document %s: %w", p.Key, err)
	}
	return nil
}

// Search returns the nearest documents, clamped to the collection size
// because chromem rejects requests for more results than it holds.
func (i *Index) Search(ctx context.Context, q store.VectorQuery) ([]store.VectorHit, error) {
	if err := i.checkDims(len(q.Vector)); err != nil {
		return nil, err
	}

	col := i.collection()
	n := min(q.Limit, col.Count())
	if n <= 0 {
		return nil, nil
	}

	vec := append([]float32(nil), q.Vector...)
	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "querying chromem: %w", err)
	}

	hits := make([]store.VectorHit, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < q.ScoreThreshold {
			continue
		}
		hit := store.VectorHit{Key: r.ID, Score: score}
		if raw, ok := r.Metadata[payloadKey]; ok {
			if err := json.Unmarshal([]byte(raw), &hit.Payload); err != nil {
				return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "unmarshalling chromem payload: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Delete removes documents by key.
func (i *Index) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := i.collection().Delete(ctx, nil, nil, keys...); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "deleting chromem documents: %w", err)
	}
	return nil
}

// Close is a no-op; persistent collections are written on every change.
func (i *Index) Close() error {
	return nil
}

func (i *Index) checkDims(n int) error {
	if i.dimensions > 0 && n != i.dimensions {
		return palaiserr.Errorf(palaiserr.CodeVectorDimensionInvalid,
			"vector has %d dimensions, index expects %d", n, i.dimensions)
	}
	return nil
}
