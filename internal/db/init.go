package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_hash TEXT PRIMARY KEY,
    write_token_hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_data (
    id UUID PRIMARY KEY,
    user_hash TEXT NOT NULL REFERENCES accounts(user_hash) ON DELETE CASCADE,
    origin TEXT NOT NULL,
    encrypted_payload TEXT NOT NULL,
    iv TEXT NOT NULL,
    salt TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_hash, origin)
);

CREATE INDEX IF NOT EXISTS sync_data_updated_at_idx ON sync_data (updated_at);
`

// InitPostgres opens the database at dsn and creates the store schema.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := CreateSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

// CreateSchema creates the accounts and sync_data tables if missing.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
