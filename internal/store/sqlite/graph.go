// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Compile-time interface check.
var _ store.GraphStore = (*GraphStore)(nil)

const defaultListLimit = 50

// GraphStore implements store.GraphStore backed by SQLite, with an FTS5
// index over node content for lexical search.
type GraphStore struct {
	db     *sql.DB
	fts    bool
	logger *slog.Logger
	now    func() time.Time
}

// NewGraphStore opens (or creates) a SQLite database at dbPath and
// initialises the memory node and edge tables.
func NewGraphStore(dbPath string) (*GraphStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrateGraph(db); err != nil {
		_ = db.Close()
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "migrating graph tables: %w", err)
	}

	g := &GraphStore{db: db, logger: slog.Default(), now: time.Now}

	if err := migrateGraphFTS(db); err != nil {
		// Builds of go-sqlite3 without the sqlite_fts5 tag have no fts5 module.
		g.logger.Warn("full-text index unavailable, lexical search falls back to LIKE",
			slog.String("error", err.Error()),
			slog.String("hint", "build with -tags sqlite_fts5"),
		)
	} else {
		g.fts = true
	}

	return g, nil
}

func migrateGraph(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS memory_nodes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL CHECK (kind IN ('episodic', 'semantic', 'procedural')),
	content       TEXT NOT NULL CHECK (content <> ''),
	summary       TEXT NOT NULL DEFAULT '',
	entity_type   TEXT NOT NULL DEFAULT '',
	entity_id     TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	metadata      TEXT NOT NULL DEFAULT '{}',
	embedding_ref TEXT NOT NULL DEFAULT '',
	valid_from    TEXT NOT NULL DEFAULT '',
	valid_until   TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	created_by    TEXT NOT NULL DEFAULT 'system'
);

CREATE INDEX IF NOT EXISTS idx_memory_nodes_kind ON memory_nodes(kind);
CREATE INDEX IF NOT EXISTS idx_memory_nodes_entity ON memory_nodes(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS memory_edges (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source_node_id INTEGER NOT NULL REFERENCES memory_nodes(id),
	target_node_id INTEGER NOT NULL REFERENCES memory_nodes(id),
	relation       TEXT NOT NULL,
	weight         REAL NOT NULL DEFAULT 0.5 CHECK (weight >= 0 AND weight <= 1),
	created_at     TEXT NOT NULL,
	CHECK (source_node_id <> target_node_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_edges_source ON memory_edges(source_node_id);
CREATE INDEX IF NOT EXISTS idx_memory_edges_target ON memory_edges(target_node_id);

-- At most one related_to edge per ordered node pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_edges_related_to
	ON memory_edges(source_node_id, target_node_id) WHERE relation = 'related_to';
`
	_, err := db.Exec(ddl)
	return err
}

// FullText reports whether lexical search runs on the FTS5 index.
func (g *GraphStore) FullText() bool {
	return g.fts
}

func migrateGraphFTS(db *sql.DB) error {
	const ddl = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_nodes_fts USING fts5(
	content,
	content='memory_nodes',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS memory_nodes_ai AFTER INSERT ON memory_nodes BEGIN
	INSERT INTO memory_nodes_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memory_nodes_ad AFTER DELETE ON memory_nodes BEGIN
	INSERT INTO memory_nodes_fts(memory_nodes_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (g *GraphStore) Close() error {
	return g.db.Close()
}

// CreateNode inserts a node and assigns its ID and CreatedAt.
func (g *GraphStore) CreateNode(ctx context.Context, n *store.Node) error {
	if !n.Kind.Valid() {
		return palaiserr.Errorf(palaiserr.CodeStoreNodeInvalid, "invalid node kind %q", n.Kind)
	}
	if strings.TrimSpace(n.Content) == "" {
		return palaiserr.New(palaiserr.CodeStoreNodeInvalid, "node content is required")
	}
	if n.CreatedBy == "" {
		n.CreatedBy = store.CreatorSystem
	}
	if !n.CreatedBy.Valid() {
		return palaiserr.Errorf(palaiserr.CodeStoreNodeInvalid, "invalid node creator %q", n.CreatedBy)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = g.now().UTC()
	}
	if n.ValidFrom == nil {
		from := n.CreatedAt
		n.ValidFrom = &from
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}

	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreNodeInvalid, "marshalling node tags: %w", err)
	}
	metadata := []byte("{}")
	if len(n.Metadata) > 0 {
		metadata, err = json.Marshal(n.Metadata)
		if err != nil {
			return palaiserr.Errorf(palaiserr.CodeStoreNodeInvalid, "marshalling node metadata: %w", err)
		}
	}

	const q = `INSERT INTO memory_nodes
	(kind, content, summary, entity_type, entity_id, tags, metadata, embedding_ref, valid_from, valid_until, created_at, created_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := g.db.ExecContext(ctx, q,
		string(n.Kind),
		n.Content,
		n.Summary,
		string(n.EntityType),
		n.EntityID,
		string(tags),
		string(metadata),
		n.EmbeddingRef,
		formatTimePtr(n.ValidFrom),
		formatTimePtr(n.ValidUntil),
		formatTime(n.CreatedAt),
		string(n.CreatedBy),
	)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "inserting memory node: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "reading memory node id: %w", err)
	}
	n.ID = id
	return nil
}

const nodeColumns = `id, kind, content, summary, entity_type, entity_id, tags, metadata,
	embedding_ref, valid_from, valid_until, created_at, created_by`

const nodeColumnsQualified = `n.id, n.kind, n.content, n.summary, n.entity_type, n.entity_id, n.tags, n.metadata,
	n.embedding_ref, n.valid_from, n.valid_until, n.created_at, n.created_by`

// GetNode returns the node with the given id.
func (g *GraphStore) GetNode(ctx context.Context, id int64) (*store.Node, error) {
	row := g.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM memory_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NodeNotFound(id)
	}
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "getting memory node %d: %w", id, err)
	}
	return n, nil
}

// GetNodes returns the existing nodes among ids, in the order of ids.
// Missing ids are skipped and duplicates collapse to their first position.
func (g *GraphStore) GetNodes(ctx context.Context, ids []int64) ([]*store.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := g.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM memory_nodes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "getting memory nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*store.Node, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}

	out := make([]*store.Node, 0, len(found))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
			delete(byID, id)
		}
	}
	return out, nil
}

// ListNodes returns nodes newest first. Ids are assigned in creation order,
// so they double as the recency key.
func (g *GraphStore) ListNodes(ctx context.Context, filter store.NodeFilter) ([]*store.Node, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}

	q := `SELECT ` + nodeColumns + ` FROM memory_nodes`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "listing memory nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// SetEmbeddingRef links a node to its vector index point.
func (g *GraphStore) SetEmbeddingRef(ctx context.Context, id int64, ref string) error {
	res, err := g.db.ExecContext(ctx, `UPDATE memory_nodes SET embedding_ref = ? WHERE id = ?`, ref, id)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "setting embedding ref on node %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "setting embedding ref on node %d: %w", id, err)
	}
	if n == 0 {
		return store.NodeNotFound(id)
	}
	return nil
}

// CreateEdge inserts an edge. Endpoint existence and the related_to
// uniqueness check run in the same transaction as the insert; the partial
// unique index makes the dedup race-free across connections.
func (g *GraphStore) CreateEdge(ctx context.Context, e *store.Edge) error {
	if !e.Relation.Valid() {
		return palaiserr.Errorf(palaiserr.CodeStoreEdgeInvalid, "invalid edge relation %q", e.Relation)
	}
	if e.SourceNodeID == e.TargetNodeID {
		return palaiserr.New(palaiserr.CodeMemoryEdgeSelfLoop, "edge source and target must differ",
			palaiserr.FieldNodeID(e.SourceNodeID))
	}
	if e.Weight < 0 || e.Weight > 1 {
		return palaiserr.Errorf(palaiserr.CodeStoreEdgeInvalid, "edge weight %v outside [0,1]", e.Weight)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.now().UTC()
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range []int64{e.SourceNodeID, e.TargetNodeID} {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM memory_nodes WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NodeNotFound(id)
		}
		if err != nil {
			return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "checking edge endpoint %d: %w", id, err)
		}
	}

	const q = `INSERT INTO memory_edges (source_node_id, target_node_id, relation, weight, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`

	res, err := tx.ExecContext(ctx, q, e.SourceNodeID, e.TargetNodeID, string(e.Relation), e.Weight, formatTime(e.CreatedAt))
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "inserting memory edge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "inserting memory edge: %w", err)
	}
	if affected == 0 {
		return store.EdgeConflict(e.SourceNodeID, e.TargetNodeID, e.Relation)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "reading memory edge id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "committing memory edge: %w", err)
	}
	e.ID = id
	return nil
}

// HasEdge reports whether an edge source -> target with relation rel exists.
func (g *GraphStore) HasEdge(ctx context.Context, source, target int64, rel store.Relation) (bool, error) {
	var one int
	err := g.db.QueryRowContext(ctx,
		`SELECT 1 FROM memory_edges WHERE source_node_id = ? AND target_node_id = ? AND relation = ? LIMIT 1`,
		source, target, string(rel),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "checking memory edge: %w", err)
	}
	return true, nil
}

// EdgesTouching returns all edges where id is the source or the target,
// oldest first.
func (g *GraphStore) EdgesTouching(ctx context.Context, id int64) ([]*store.Edge, error) {
	const q = `SELECT id, source_node_id, target_node_id, relation, weight, created_at
FROM memory_edges
WHERE source_node_id = ? OR target_node_id = ?
ORDER BY id ASC`

	rows, err := g.db.QueryContext(ctx, q, id, id)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "listing edges of node %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*store.Edge
	for rows.Next() {
		var (
			e         store.Edge
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &e.Relation, &e.Weight, &createdAt); err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "scanning memory edge: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		edges = append(edges, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "iterating memory edges: %w", err)
	}
	return edges, nil
}

// SearchText matches every word of query against node content. Results are
// ranked by FTS relevance when the index is available, otherwise newest
// first.
func (g *GraphStore) SearchText(ctx context.Context, query string, opts store.TextSearchOpts) ([]*store.Node, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		q    string
		args []any
	)
	if g.fts {
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + t + `"`
		}
		q = `SELECT ` + nodeColumnsQualified + `
FROM memory_nodes n
JOIN memory_nodes_fts fts ON n.id = fts.rowid
WHERE fts.content MATCH ?`
		args = append(args, strings.Join(quoted, " "))
		if opts.EntityType != "" {
			q += ` AND n.entity_type = ?`
			args = append(args, string(opts.EntityType))
		}
		q += ` ORDER BY fts.rank, n.id DESC LIMIT ?`
	} else {
		conds := make([]string, len(terms))
		for i, t := range terms {
			conds[i] = `content LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(t)+"%")
		}
		q = `SELECT ` + nodeColumns + ` FROM memory_nodes WHERE ` + strings.Join(conds, " AND ")
		if opts.EntityType != "" {
			q += ` AND entity_type = ?`
			args = append(args, string(opts.EntityType))
		}
		q += ` ORDER BY id DESC LIMIT ?`
	}
	args = append(args, limit)

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "searching memory nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNodes(rows)
}

// searchTerms splits a free-text query into words, dropping punctuation so
// the result is safe to quote inside an FTS5 expression.
func searchTerms(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*store.Node, error) {
	var (
		n                             store.Node
		tags, metadata                string
		validFrom, validUntil, create string
	)
	if err := row.Scan(
		&n.ID,
		&n.Kind,
		&n.Content,
		&n.Summary,
		&n.EntityType,
		&n.EntityID,
		&tags,
		&metadata,
		&n.EmbeddingRef,
		&validFrom,
		&validUntil,
		&create,
		&n.CreatedBy,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "unmarshalling node tags: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "unmarshalling node metadata: %w", err)
		}
	}
	n.ValidFrom = parseTimePtr(validFrom)
	n.ValidUntil = parseTimePtr(validUntil)
	n.CreatedAt = parseTime(create)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*store.Node, error) {
	var nodes []*store.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "scanning memory node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "iterating memory nodes: %w", err)
	}
	return nodes, nil
}
