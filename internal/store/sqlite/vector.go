// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by SQLite with sqlite-vec.
// Vectors are compared with cosine distance; hits report 1 - distance.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewVectorIndex opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion payload table.
func NewVectorIndex(dbPath string, dimensions int) (*VectorIndex, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	v := &VectorIndex{db: db, dimensions: dimensions}
	if err := v.EnsureCollection(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return v, nil
}

// EnsureCollection creates the vec0 table and payload table if missing.
func (v *VectorIndex) EnsureCollection(ctx context.Context) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(point_key TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		v.dimensions,
	)
	if _, err := v.db.ExecContext(ctx, vecDDL); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "creating memory_vectors virtual table: %w", err)
	}

	const payloadDDL = `
CREATE TABLE IF NOT EXISTS memory_vector_payloads (
	point_key TEXT PRIMARY KEY,
	payload   TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := v.db.ExecContext(ctx, payloadDDL); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "creating memory_vector_payloads table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a point and its payload.
func (v *VectorIndex) Upsert(ctx context.Context, p store.Point) error {
	if len(p.Vector) != v.dimensions {
		return palaiserr.Errorf(palaiserr.CodeVectorDimensionInvalid,
			"vector has %d dimensions, index expects %d", len(p.Vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(p.Vector)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeVectorDimensionInvalid, "serializing vector: %w", err)
	}

	payload := []byte("{}")
	if len(p.Payload) > 0 {
		payload, err = json.Marshal(p.Payload)
		if err != nil {
			return palaiserr.Errorf(palaiserr.CodeStoreInvalidInput, "marshalling payload: %w", err)
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE point_key = ?`, p.Key); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "deleting existing vector %s: %w", p.Key, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO memory_vectors(point_key, embedding) VALUES (?, ?)`, p.Key, blob); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "inserting vector %s: %w", p.Key, err)
	}

	const payloadQ = `INSERT INTO memory_vector_payloads(point_key, payload) VALUES (?, ?)
ON CONFLICT(point_key) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, payloadQ, p.Key, string(payload)); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "upserting vector payload %s: %w", p.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "committing vector upsert: %w", err)
	}
	return nil
}

// Search performs a k-nearest-neighbour search and returns hits ordered by
// descending similarity, dropping those below the score threshold.
func (v *VectorIndex) Search(ctx context.Context, q store.VectorQuery) ([]store.VectorHit, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	if len(q.Vector) != v.dimensions {
		return nil, palaiserr.Errorf(palaiserr.CodeVectorDimensionInvalid,
			"query has %d dimensions, index expects %d", len(q.Vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(q.Vector)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeVectorDimensionInvalid, "serializing query vector: %w", err)
	}

	const query = `SELECT v.point_key, v.distance, COALESCE(p.payload, '{}')
FROM memory_vectors v
LEFT JOIN memory_vector_payloads p ON p.point_key = v.point_key
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, query, blob, q.Limit)
	if err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "searching vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []store.VectorHit
	for rows.Next() {
		var (
			hit      store.VectorHit
			distance float64
			payload  string
		)
		if err := rows.Scan(&hit.Key, &distance, &payload); err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "scanning vector hit: %w", err)
		}

		hit.Score = 1 - distance
		if hit.Score < q.ScoreThreshold {
			continue
		}

		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &hit.Payload); err != nil {
				return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "unmarshalling vector payload: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "iterating vector hits: %w", err)
	}

	return hits, nil
}

// Delete removes points and their payloads by key.
func (v *VectorIndex) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE point_key IN (`+placeholders+`)`, args...); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "deleting vectors: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vector_payloads WHERE point_key IN (`+placeholders+`)`, args...); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "deleting vector payloads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "committing vector delete: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}
