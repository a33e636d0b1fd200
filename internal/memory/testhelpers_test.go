// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/store"
	"github.com/palais-dev/palais/internal/store/sqlite"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeEmbedder returns the same vector for every text after delay.
type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	err    error
	texts  []string
	delay  time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := wait(ctx, f.delay); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	return out, nil
}

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEmbedder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// fakeCompleter answers every request with reply after delay.
type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []provider.CompletionRequest
	delay    time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if err := wait(ctx, f.delay); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeCompleter) calls() []provider.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.CompletionRequest(nil), f.requests...)
}

// fakeIndex stores upserted points and answers searches with scripted hits,
// applying the query's threshold and limit like a real index would.
type fakeIndex struct {
	mu        sync.Mutex
	points    map[string]store.Point
	hits      []store.VectorHit
	queries   []store.VectorQuery
	searchErr error
	upsertErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[string]store.Point)}
}

func (f *fakeIndex) EnsureCollection(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, p store.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[p.Key] = p
	return nil
}

func (f *fakeIndex) Search(_ context.Context, q store.VectorQuery) ([]store.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := make([]store.VectorHit, 0, len(f.hits))
	for _, h := range f.hits {
		if h.Score < q.ScoreThreshold {
			continue
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (f *fakeIndex) Delete(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.points, k)
	}
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) setHits(hits ...store.VectorHit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = hits
}

func (f *fakeIndex) point(key string) (store.Point, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[key]
	return p, ok
}

func (f *fakeIndex) lastQuery() store.VectorQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return store.VectorQuery{}
	}
	return f.queries[len(f.queries)-1]
}

func hit(id int64, score float64) store.VectorHit {
	return store.VectorHit{Key: store.PointKey(id), Score: score}
}

type harness struct {
	svc       *memory.Service
	graph     *sqlite.GraphStore
	index     *fakeIndex
	embedder  *fakeEmbedder
	completer *fakeCompleter
	metrics   *memory.Metrics
}

type harnessOpts struct {
	noEmbedding bool
	noCompleter bool
	redactor    memory.Redactor
	cfg         func(*memory.Config)
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	graph, err := sqlite.NewGraphStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })

	h := &harness{
		graph:     graph,
		index:     newFakeIndex(),
		embedder:  &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		completer: &fakeCompleter{},
		metrics:   memory.NewMetrics(),
	}

	deps := memory.Deps{
		Graph:   graph,
		Metrics: h.metrics,
		Logger:  discardLogger(),
	}
	deps.Redactor = opts.redactor
	if !opts.noEmbedding {
		deps.Vectors = h.index
		deps.Embedder = h.embedder
	}
	if !opts.noCompleter {
		deps.Completer = h.completer
	}

	cfg := memory.DefaultConfig()
	cfg.Workers = 1
	cfg.CallTimeout = 5 * time.Second
	if opts.cfg != nil {
		opts.cfg(&cfg)
	}

	svc, err := memory.NewService(deps, cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

// seed inserts a node straight into the graph, bypassing the pipelines.
func (h *harness) seed(t *testing.T, kind store.NodeKind, content string) *store.Node {
	t.Helper()
	n := &store.Node{Kind: kind, Content: content, CreatedBy: store.CreatorUser}
	require.NoError(t, h.graph.CreateNode(context.Background(), n))
	return n
}

func requireCode(t *testing.T, err error, code palaiserr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, palaiserr.CodeOf(err), "error: %v", err)
}
