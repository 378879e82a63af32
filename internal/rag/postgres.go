package rag

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps knowledge chunks in the application's Postgres database.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects using the pgx driver and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{sqlStore{db: db, dialect: postgresDialect}}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("knowledge store opened", "component", "rag", "driver", "postgres", "dsn_len", len(dsn))
	return s, nil
}

var _ KnowledgeStore = (*PostgresStore)(nil)
