package rag

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// sqlDialect captures the few differences between the relational backends.
type sqlDialect struct {
	name string
	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// textOrder is appended to text ORDER BY terms so ordering is bytewise.
	textOrder string
}

var (
	sqliteDialect = sqlDialect{
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = sqlDialect{
		name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		textOrder:   ` COLLATE "C"`,
	}
)

var chunkSchema = []string{
	`CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		source_title TEXT NOT NULL,
		page_number INTEGER,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_source ON knowledge_chunks(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_order ON knowledge_chunks(source_title, chunk_index)`,
}

const chunkColumns = "id, source_id, source_title, page_number, chunk_index, text, embedding"

// sqlStore implements KnowledgeStore over database/sql for both SQLite and Postgres.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range chunkSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// sourceFilter returns an "AND source_id IN (...)" clause starting at bind position next.
func (s *sqlStore) sourceFilter(opts *SearchOptions, next int) (string, []any) {
	if opts == nil || len(opts.SourceIDs) == 0 {
		return "", nil
	}
	marks := make([]string, len(opts.SourceIDs))
	args := make([]any, len(opts.SourceIDs))
	for i, id := range opts.SourceIDs {
		marks[i] = s.dialect.placeholder(next + i)
		args[i] = id
	}
	return " AND source_id IN (" + strings.Join(marks, ", ") + ")", args
}

func (s *sqlStore) Candidates(ctx context.Context, opts *SearchOptions) ([]KnowledgeChunk, error) {
	filter, args := s.sourceFilter(opts, 1)
	query := "SELECT " + chunkColumns + " FROM knowledge_chunks WHERE embedding IS NOT NULL AND embedding <> ''" + filter
	return s.queryChunks(ctx, query, args...)
}

func (s *sqlStore) Ordered(ctx context.Context, limit int, opts *SearchOptions) ([]KnowledgeChunk, error) {
	filter, args := s.sourceFilter(opts, 1)
	query := "SELECT " + chunkColumns + " FROM knowledge_chunks WHERE 1=1" + filter +
		" ORDER BY source_title" + s.dialect.textOrder + ", chunk_index, id" + s.dialect.textOrder
	if limit > 0 {
		query += " LIMIT " + s.dialect.placeholder(len(args)+1)
		args = append(args, limit)
	}
	return s.queryChunks(ctx, query, args...)
}

func (s *sqlStore) queryChunks(ctx context.Context, query string, args ...any) ([]KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s chunk query: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	for rows.Next() {
		var (
			c        KnowledgeChunk
			page     sql.NullInt64
			embedded sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.SourceID, &c.SourceTitle, &page, &c.ChunkIndex, &c.Text, &embedded); err != nil {
			return nil, fmt.Errorf("%s chunk scan: %w", s.dialect.name, err)
		}
		if page.Valid {
			p := int(page.Int64)
			c.PageNumber = &p
		}
		if embedded.Valid {
			vec, err := parseEmbedding(embedded.String)
			if err != nil {
				slog.Warn("ignoring unparseable stored embedding",
					"component", "rag", "store", s.dialect.name, "chunk_id", c.ID, "error", err)
			}
			c.Embedding = vec
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s chunk rows: %w", s.dialect.name, err)
	}
	return chunks, nil
}

func (s *sqlStore) Insert(ctx context.Context, chunks []KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	p := s.dialect.placeholder
	stmt := fmt.Sprintf(`INSERT INTO knowledge_chunks (%s) VALUES (%s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			source_id = excluded.source_id,
			source_title = excluded.source_title,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			embedding = excluded.embedding`,
		chunkColumns, p(1), p(2), p(3), p(4), p(5), p(6), p(7))

	for _, c := range chunks {
		emb, err := encodeEmbedding(c.Embedding)
		if err != nil {
			return err
		}
		var page any
		if c.PageNumber != nil {
			page = *c.PageNumber
		}
		if _, err := tx.ExecContext(ctx, stmt, c.ID, c.SourceID, c.SourceTitle, page, c.ChunkIndex, c.Text, emb); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *sqlStore) DeleteSources(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	filter, args := s.sourceFilter(&SearchOptions{SourceIDs: sourceIDs}, 1)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_chunks WHERE 1=1"+filter, args...); err != nil {
		return fmt.Errorf("failed to delete sources: %w", err)
	}
	return nil
}

func (s *sqlStore) ExistingSources(ctx context.Context, sourceIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return existing, nil
	}
	for _, id := range sourceIDs {
		existing[id] = false
	}

	filter, args := s.sourceFilter(&SearchOptions{SourceIDs: sourceIDs}, 1)
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT source_id FROM knowledge_chunks WHERE 1=1"+filter, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
