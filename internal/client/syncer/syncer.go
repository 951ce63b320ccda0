// Package syncer sequences key derivation, encryption, snapshot collection
// and restore around the remote store's four operations.
//
// Every operation reads the configuration afresh, derives what it needs from
// the sync key, runs to completion or failure, and is never retried. There
// is no client-side locking: concurrent pushes for one origin resolve on the
// store, last write wins.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/SessionSync/internal/client/capability"
	"github.com/atinyakov/SessionSync/internal/client/collector"
	"github.com/atinyakov/SessionSync/internal/client/config"
	"github.com/atinyakov/SessionSync/internal/client/envelope"
	"github.com/atinyakov/SessionSync/internal/client/restore"
	"github.com/atinyakov/SessionSync/internal/models"
	"go.uber.org/zap"
)

// RemoteStore is the untrusted store of encrypted snapshots.
type RemoteStore interface {
	// Upsert overwrites any previous row for (accountID, origin).
	Upsert(ctx context.Context, accountID, origin string, env models.Envelope, writeToken string) error
	// Read returns nil without error when nothing is stored.
	Read(ctx context.Context, accountID, origin string) (*models.Envelope, error)
	// Delete is a no-op when nothing is stored.
	Delete(ctx context.Context, accountID, origin, writeToken string) error
	// List returns the stored origins without any secret material.
	List(ctx context.Context, accountID string) ([]models.OriginRecord, error)
}

// ConfigStore provides the client configuration.
type ConfigStore interface {
	Load(ctx context.Context) (*config.Client, error)
}

// Dialer returns the RemoteStore for an endpoint. Implementations are
// expected to reuse handles while the endpoint is unchanged.
type Dialer func(b config.Backend) (RemoteStore, error)

// Result is the outcome of a successful operation.
type Result struct {
	// Origin is the origin the operation applied to, empty for ListOrigins.
	Origin string
	// Outcome is set by Pull.
	Outcome *restore.Outcome
	// Origins is set by ListOrigins.
	Origins []models.OriginRecord
	// Message is a short summary for the user; empty for a clean success.
	Message string
}

// Partial reports whether a pull restored only some cookies.
func (r *Result) Partial() bool {
	return r != nil && r.Outcome != nil && r.Outcome.Partial()
}

// Syncer runs push, pull, delete and list operations.
type Syncer struct {
	config     ConfigStore
	dial       Dialer
	defaults   config.Backend
	cookies    restore.CookieStore
	storage    restore.PageStorage
	reconciler *restore.Reconciler
	log        *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Syncer) { s.log = log }
}

// WithDefaultBackend sets the endpoint used when the configuration has no
// custom backend.
func WithDefaultBackend(b config.Backend) Option {
	return func(s *Syncer) { s.defaults = b }
}

// New constructs a Syncer. cookies and storage may be nil for a Syncer that
// only lists and deletes.
func New(cfg ConfigStore, dial Dialer, cookies restore.CookieStore, storage restore.PageStorage, opts ...Option) *Syncer {
	s := &Syncer{
		config:  cfg,
		dial:    dial,
		cookies: cookies,
		storage: storage,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.reconciler = restore.NewReconciler(cookies, storage, s.log)
	return s
}

// Push captures the page's cookies and storage and uploads them encrypted.
func (s *Syncer) Push(ctx context.Context, page collector.Page) (res *Result, err error) {
	defer s.recoverFault("push", &res, &err)

	secret, remote, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if s.cookies == nil || s.storage == nil {
		return nil, fmt.Errorf("%w: no browser collaborators", ErrInternal)
	}
	host, err := page.Hostname()
	if err != nil {
		return nil, fmt.Errorf("push target: %w", err)
	}

	byURL, err := s.cookies.GetAll(ctx, models.CookieQuery{URL: page.URL})
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	byDomain, err := s.cookies.GetAll(ctx, models.CookieQuery{Domain: host})
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	local, session, err := s.storage.Read(ctx, page.URL)
	if err != nil {
		s.log.Warn("page storage unavailable, pushing cookies only", zap.Error(err))
		local, session = nil, nil
	}

	snap := collector.Build(page, byURL, byDomain, local, session)
	return s.push(ctx, remote, secret, snap)
}

// PushSnapshot uploads an already collected snapshot.
func (s *Syncer) PushSnapshot(ctx context.Context, snap models.Snapshot) (res *Result, err error) {
	defer s.recoverFault("push", &res, &err)

	secret, remote, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.push(ctx, remote, secret, snap)
}

func (s *Syncer) push(ctx context.Context, remote RemoteStore, secret string, snap models.Snapshot) (*Result, error) {
	origin, err := collector.Page{URL: snap.OriginURL}.Origin()
	if err != nil {
		return nil, fmt.Errorf("snapshot origin: %w", err)
	}

	caps := capability.Derive(secret)
	env, err := envelope.Encrypt(snap, secret)
	if errors.Is(err, envelope.ErrInvalidText) {
		return nil, fmt.Errorf("snapshot cannot be synced: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %v", ErrInternal, err)
	}
	if err := remote.Upsert(ctx, caps.AccountID, origin, env, caps.WriteToken); err != nil {
		return nil, &RemoteError{Op: "upsert", Err: err}
	}

	s.log.Info("snapshot pushed",
		zap.String("origin", origin),
		zap.Int("cookies", len(snap.Cookies)),
		zap.Int("local", len(snap.LocalEntries)),
		zap.Int("session", len(snap.SessionEntries)))
	return &Result{Origin: origin}, nil
}

// Pull downloads the snapshot stored for the page's origin and replaces
// the page's cookies and storage with it. Cookies the store rejects are
// counted in the result; that is still a success.
func (s *Syncer) Pull(ctx context.Context, page collector.Page) (res *Result, err error) {
	defer s.recoverFault("pull", &res, &err)

	secret, remote, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if s.cookies == nil || s.storage == nil {
		return nil, fmt.Errorf("%w: no browser collaborators", ErrInternal)
	}
	origin, err := page.Origin()
	if err != nil {
		return nil, fmt.Errorf("pull target: %w", err)
	}

	env, err := remote.Read(ctx, capability.DeriveAccountID(secret), origin)
	if err != nil {
		return nil, &RemoteError{Op: "read", Err: err}
	}
	if env == nil {
		return nil, ErrNoData
	}

	var snap models.Snapshot
	if err := envelope.Decrypt(*env, secret, &snap); err != nil {
		return nil, ErrDecryptFailed
	}

	outcome, err := s.reconciler.Apply(ctx, page, snap)
	if err != nil {
		return nil, err
	}
	s.log.Info("snapshot restored",
		zap.String("origin", origin),
		zap.Int("restored", outcome.Succeeded),
		zap.Int("failed", outcome.Failed),
		zap.Int("cleared", outcome.Removed))
	return &Result{Origin: origin, Outcome: &outcome, Message: outcome.Summary()}, nil
}

// DeleteOrigin removes the snapshot stored for origin.
func (s *Syncer) DeleteOrigin(ctx context.Context, origin string) (res *Result, err error) {
	defer s.recoverFault("delete", &res, &err)

	if origin == "" {
		return nil, errors.New("origin is required")
	}
	secret, remote, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	caps := capability.Derive(secret)
	if err := remote.Delete(ctx, caps.AccountID, origin, caps.WriteToken); err != nil {
		return nil, &RemoteError{Op: "delete", Err: err}
	}
	s.log.Info("snapshot deleted", zap.String("origin", origin))
	return &Result{Origin: origin}, nil
}

// ListOrigins returns the origins stored for the account. It needs only
// the account identifier, never the write token.
func (s *Syncer) ListOrigins(ctx context.Context) (res *Result, err error) {
	defer s.recoverFault("list", &res, &err)

	secret, remote, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	origins, err := remote.List(ctx, capability.DeriveAccountID(secret))
	if err != nil {
		return nil, &RemoteError{Op: "list", Err: err}
	}
	if origins == nil {
		origins = []models.OriginRecord{}
	}
	return &Result{Origins: origins}, nil
}

// session loads the configuration and resolves the remote store.
func (s *Syncer) session(ctx context.Context) (string, RemoteStore, error) {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Configured() {
		return "", nil, ErrConfigMissing
	}
	remote, err := s.dial(cfg.Endpoint(s.defaults))
	if err != nil {
		return "", nil, &RemoteError{Op: "connect", Err: err}
	}
	return cfg.Passphrase, remote, nil
}

// recoverFault turns a panic raised by a collaborator into ErrInternal.
func (s *Syncer) recoverFault(op string, res **Result, err *error) {
	if r := recover(); r != nil {
		s.log.Error("operation aborted", zap.String("op", op), zap.Any("panic", r))
		*res = nil
		*err = fmt.Errorf("%w: %s: %v", ErrInternal, op, r)
	}
}
