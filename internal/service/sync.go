// Package service implements the snapshot store's business rules,
// delegating persistence to repository interfaces.
//
// The store never sees plaintext. It checks the shape of what it is given,
// binds each account to the write token presented on its first upsert and
// refuses writes that present another one.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/atinyakov/SessionSync/internal/repository"
)

var (
	// ErrInvalidInput is returned when a request parameter is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when a write presents the wrong write token.
	ErrForbidden = errors.New("invalid write token")
)

// SyncRepository defines the persistence operations needed by the SyncService.
type SyncRepository interface {
	// Upsert stores rec, registering or verifying tokenHash for the account.
	Upsert(ctx context.Context, rec models.SyncRecord, tokenHash []byte) error
	// Read returns the row for userHash and origin, or nil.
	Read(ctx context.Context, userHash, origin string) (*models.SyncRecord, error)
	// Delete removes rows and reports how many were removed.
	Delete(ctx context.Context, userHash string, origins ...string) (int64, error)
	// ListOrigins returns the stored origins, most recent first.
	ListOrigins(ctx context.Context, userHash string) ([]models.OriginRecord, error)
}

// AccountRepository looks up the write token bound to an account.
type AccountRepository interface {
	WriteTokenHash(ctx context.Context, userHash string) ([]byte, error)
}

// SyncService implements the four store operations.
type SyncService struct {
	repo     SyncRepository
	accounts AccountRepository
}

// NewSyncService constructs a SyncService.
func NewSyncService(repo SyncRepository, accounts AccountRepository) *SyncService {
	return &SyncService{repo: repo, accounts: accounts}
}

// HashWriteToken returns the digest under which a write token is stored.
func HashWriteToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Upsert stores env for (userHash, origin), replacing any previous row.
func (s *SyncService) Upsert(ctx context.Context, userHash, origin string, env models.Envelope, writeToken string) error {
	if err := validateDigest("user hash", userHash); err != nil {
		return err
	}
	if err := validateDigest("write token", writeToken); err != nil {
		return err
	}
	if err := validateOrigin(origin); err != nil {
		return err
	}
	if err := validateBase64("encrypted payload", env.Ciphertext, gcmTagSize, 0); err != nil {
		return err
	}
	if err := validateBase64("iv", env.IV, 0, nonceSize); err != nil {
		return err
	}
	if err := validateBase64("salt", env.Salt, 0, saltSize); err != nil {
		return err
	}

	err := s.repo.Upsert(ctx, models.SyncRecord{
		AccountID: userHash,
		Origin:    origin,
		Envelope:  env,
	}, HashWriteToken(writeToken))
	if errors.Is(err, repository.ErrWriteTokenMismatch) {
		return ErrForbidden
	}
	return err
}

// Read returns the envelope stored for (userHash, origin), or nil.
func (s *SyncService) Read(ctx context.Context, userHash, origin string) (*models.Envelope, error) {
	if err := validateDigest("user hash", userHash); err != nil {
		return nil, err
	}
	if err := validateOrigin(origin); err != nil {
		return nil, err
	}
	rec, err := s.repo.Read(ctx, userHash, origin)
	if err != nil || rec == nil {
		return nil, err
	}
	return &rec.Envelope, nil
}

// Delete removes the row for (userHash, origin). Deleting from an unknown
// account succeeds; a known account requires its write token.
func (s *SyncService) Delete(ctx context.Context, userHash, origin, writeToken string) error {
	if err := validateDigest("user hash", userHash); err != nil {
		return err
	}
	if err := validateDigest("write token", writeToken); err != nil {
		return err
	}
	if err := validateOrigin(origin); err != nil {
		return err
	}

	stored, err := s.accounts.WriteTokenHash(ctx, userHash)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(stored, HashWriteToken(writeToken)) != 1 {
		return ErrForbidden
	}
	if _, err := s.repo.Delete(ctx, userHash, origin); err != nil {
		return fmt.Errorf("delete %s: %w", origin, err)
	}
	return nil
}

// List returns the origins stored for userHash.
func (s *SyncService) List(ctx context.Context, userHash string) ([]models.OriginRecord, error) {
	if err := validateDigest("user hash", userHash); err != nil {
		return nil, err
	}
	return s.repo.ListOrigins(ctx, userHash)
}
