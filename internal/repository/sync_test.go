package repository

import (
	"context"
	"crypto/sha256"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/lib/pq"
)

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func setupMock(t *testing.T) (*PostgresSyncRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresSyncRepository(db)
	repo.now = func() time.Time { return fixedNow }
	cleanup := func() {
		db.Close()
	}
	return repo, mock, cleanup
}

func tokenHash(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func sampleRecord() models.SyncRecord {
	return models.SyncRecord{
		AccountID: "acct",
		Origin:    "https://x.test",
		Envelope:  models.Envelope{Ciphertext: "Y3Q=", IV: "aXY=", Salt: "c2FsdA=="},
	}
}

func expectTokenCheck(mock sqlmock.Sqlmock, userHash string, presented, stored []byte) {
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts (user_hash, write_token_hash) VALUES ($1, $2) ON CONFLICT DO NOTHING`)).
		WithArgs(userHash, presented).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT write_token_hash FROM accounts WHERE user_hash = $1 FOR UPDATE`)).
		WithArgs(userHash).
		WillReturnRows(sqlmock.NewRows([]string{"write_token_hash"}).AddRow(stored))
}

func TestUpsert_FirstWriteRegistersAccount(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	rec := sampleRecord()
	hash := tokenHash("token")

	mock.ExpectBegin()
	expectTokenCheck(mock, rec.AccountID, hash, hash)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sync_data (id, user_hash, origin, encrypted_payload, iv, salt, updated_at)`)).
		WithArgs(sqlmock.AnyArg(), "acct", "https://x.test", "Y3Q=", "aXY=", "c2FsdA==", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Upsert(context.Background(), rec, hash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsert_TokenMismatch(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	rec := sampleRecord()

	mock.ExpectBegin()
	expectTokenCheck(mock, rec.AccountID, tokenHash("forged"), tokenHash("token"))
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), rec, tokenHash("forged"))
	if !errors.Is(err, ErrWriteTokenMismatch) {
		t.Fatalf("expected ErrWriteTokenMismatch, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsert_ExecError(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	rec := sampleRecord()
	rec.ID = "3f1b8f0e-4a5b-4c2d-9e7f-0a1b2c3d4e5f"
	hash := tokenHash("token")

	mock.ExpectBegin()
	expectTokenCheck(mock, rec.AccountID, hash, hash)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sync_data`)).
		WithArgs(rec.ID, "acct", "https://x.test", "Y3Q=", "aXY=", "c2FsdA==", fixedNow).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), rec, hash)
	if err == nil || !regexp.MustCompile(`upsert: disk full`).MatchString(err.Error()) {
		t.Fatalf("expected upsert error, got %v", err)
	}
}

func TestUpsert_BeginError(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("no conn"))

	err := repo.Upsert(context.Background(), sampleRecord(), tokenHash("t"))
	if err == nil || !regexp.MustCompile(`begin tx`).MatchString(err.Error()) {
		t.Fatalf("expected begin tx error, got %v", err)
	}
}

func TestRead_Found(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_hash, origin, encrypted_payload, iv, salt, updated_at FROM sync_data`)).
		WithArgs("acct", "https://x.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_hash", "origin", "encrypted_payload", "iv", "salt", "updated_at"}).
			AddRow("row-1", "acct", "https://x.test", "Y3Q=", "aXY=", "c2FsdA==", fixedNow))

	rec, err := repo.Read(context.Background(), "acct", "https://x.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.ID != "row-1" || rec.Envelope.Salt != "c2FsdA==" || !rec.UpdatedAt.Equal(fixedNow) {
		t.Errorf("unexpected record: %+v", rec)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRead_NotFound(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_hash, origin`)).
		WithArgs("acct", "https://none.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_hash", "origin", "encrypted_payload", "iv", "salt", "updated_at"}))

	rec, err := repo.Read(context.Background(), "acct", "https://none.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestRead_Error(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_hash, origin`)).
		WillReturnError(errors.New("query fail"))

	_, err := repo.Read(context.Background(), "acct", "o")
	if err == nil || !regexp.MustCompile(`Read failed`).MatchString(err.Error()) {
		t.Errorf("expected Read failed error, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	origins := []string{"https://a.test", "https://b.test"}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sync_data WHERE user_hash = $1 AND origin = ANY($2)`)).
		WithArgs("acct", pq.Array(origins)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.Delete(context.Background(), "acct", origins...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows removed, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListOrigins_Success(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	older := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT origin, updated_at FROM sync_data WHERE user_hash = $1 ORDER BY updated_at DESC`)).
		WithArgs("acct").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "updated_at"}).
			AddRow("https://b.test", fixedNow).
			AddRow("https://a.test", older))

	got, err := repo.ListOrigins(context.Background(), "acct")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Origin != "https://b.test" || got[1].Origin != "https://a.test" {
		t.Errorf("unexpected origins: %+v", got)
	}
}

func TestListOrigins_Empty(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT origin, updated_at FROM sync_data`)).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "updated_at"}))

	got, err := repo.ListOrigins(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}
