// Package repository provides persistence implementations for the snapshot
// store using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when no account exists for a user hash.
var ErrAccountNotFound = errors.New("account not found")

// PostgresAccountRepository reads the accounts table.
type PostgresAccountRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAccountRepository creates a new PostgresAccountRepository with the given database connection.
func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{DB: db}
}

// WriteTokenHash returns the write token hash recorded for userHash, or
// ErrAccountNotFound.
func (s *PostgresAccountRepository) WriteTokenHash(ctx context.Context, userHash string) ([]byte, error) {
	var hash []byte
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT write_token_hash FROM accounts WHERE user_hash = $1`,
		userHash,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("WriteTokenHash failed: %w", err)
	}
	return hash, nil
}
