package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"wikidraft/api/internal/store"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const ftsWhere = `r.type = $1 AND r.status = $2 AND r.fts @@ plainto_tsquery('english', $3)`

// Search ranks published entries with ts_rank and builds snippets with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args := []any{store.TypeEntry, store.StatusPublish, q.Text}
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM records r WHERE `+ftsWhere, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT r.id, r.title,
			ts_headline('english', r.body, plainto_tsquery('english', $3), 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet
		FROM records r
		WHERE %s
		ORDER BY ts_rank(r.fts, plainto_tsquery('english', $3)) DESC, r.id DESC
		LIMIT %d OFFSET %d`, ftsWhere, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllEntries returns every published entry for full reindexing.
func (p *PgFTS) LoadAllEntries(ctx context.Context) ([]EntryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, body, status
		FROM records
		WHERE type = $1 AND status = $2
		ORDER BY id
	`, store.TypeEntry, store.StatusPublish)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	entries := make([]EntryRecord, 0)
	for rows.Next() {
		var e EntryRecord
		if err := rows.Scan(&e.ID, &e.Title, &e.Body, &e.Status); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
