package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrWriteTokenMismatch is returned when a write presents a token that
// differs from the one recorded for the account.
var ErrWriteTokenMismatch = errors.New("write token mismatch")

// PostgresSyncRepository stores encrypted snapshots in PostgreSQL.
type PostgresSyncRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
	// now returns the current time; replaced in tests.
	now func() time.Time
}

// NewPostgresSyncRepository creates a new PostgresSyncRepository using the provided *sql.DB.
func NewPostgresSyncRepository(db *sql.DB) *PostgresSyncRepository {
	return &PostgresSyncRepository{DB: db, now: time.Now}
}

// Upsert stores rec, replacing any row for the same account and origin.
//
// The first write for an account records tokenHash. Later writes must
// present the same hash or fail with ErrWriteTokenMismatch.
func (s *PostgresSyncRepository) Upsert(ctx context.Context, rec models.SyncRecord, tokenHash []byte) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkWriteToken(ctx, tx, rec.AccountID, tokenHash); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_data (id, user_hash, origin, encrypted_payload, iv, salt, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_hash, origin) DO UPDATE SET
			encrypted_payload = EXCLUDED.encrypted_payload,
			iv = EXCLUDED.iv,
			salt = EXCLUDED.salt,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.AccountID, rec.Origin, rec.Envelope.Ciphertext, rec.Envelope.IV, rec.Envelope.Salt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// checkWriteToken registers tokenHash for a new account and verifies it
// for an existing one. The account row stays locked until tx ends.
func checkWriteToken(ctx context.Context, tx *sql.Tx, userHash string, tokenHash []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_hash, write_token_hash) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, userHash, tokenHash)
	if err != nil {
		return fmt.Errorf("register account: %w", err)
	}

	var stored []byte
	err = tx.QueryRowContext(ctx, `
		SELECT write_token_hash FROM accounts WHERE user_hash = $1 FOR UPDATE
	`, userHash).Scan(&stored)
	if err != nil {
		return fmt.Errorf("check write token: %w", err)
	}
	if subtle.ConstantTimeCompare(stored, tokenHash) != 1 {
		return ErrWriteTokenMismatch
	}
	return nil
}

// Read returns the row for userHash and origin, or nil when none exists.
func (s *PostgresSyncRepository) Read(ctx context.Context, userHash, origin string) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_hash, origin, encrypted_payload, iv, salt, updated_at FROM sync_data
		WHERE user_hash = $1 AND origin = $2
	`, userHash, origin).Scan(&rec.ID, &rec.AccountID, &rec.Origin,
		&rec.Envelope.Ciphertext, &rec.Envelope.IV, &rec.Envelope.Salt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Read failed: %w", err)
	}
	return &rec, nil
}

// Delete removes the rows for the given origins of userHash and reports
// how many were removed. Missing rows are not an error.
func (s *PostgresSyncRepository) Delete(ctx context.Context, userHash string, origins ...string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM sync_data WHERE user_hash = $1 AND origin = ANY($2)`,
		userHash, pq.Array(origins))
	if err != nil {
		return 0, fmt.Errorf("Delete failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListOrigins returns the origins stored for userHash, most recently
// updated first.
func (s *PostgresSyncRepository) ListOrigins(ctx context.Context, userHash string) ([]models.OriginRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT origin, updated_at FROM sync_data WHERE user_hash = $1 ORDER BY updated_at DESC
	`, userHash)
	if err != nil {
		return nil, fmt.Errorf("ListOrigins: %w", err)
	}
	defer rows.Close()

	origins := []models.OriginRecord{}
	for rows.Next() {
		var o models.OriginRecord
		if err := rows.Scan(&o.Origin, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		origins = append(origins, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOrigins: %w", err)
	}
	return origins, nil
}
