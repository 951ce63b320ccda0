// Package http provides the HTTP handlers of the snapshot store RPCs.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/SessionSync/internal/api"
	"github.com/atinyakov/SessionSync/internal/models"
	"github.com/atinyakov/SessionSync/internal/service"
	"go.uber.org/zap"
)

// MaxBodyBytes limits the size of an RPC request body.
const MaxBodyBytes = 4 << 20

// SyncService defines the store operations required by the SyncHandler.
type SyncService interface {
	Upsert(ctx context.Context, userHash, origin string, env models.Envelope, writeToken string) error
	Read(ctx context.Context, userHash, origin string) (*models.Envelope, error)
	Delete(ctx context.Context, userHash, origin, writeToken string) error
	List(ctx context.Context, userHash string) ([]models.OriginRecord, error)
}

// SyncHandler handles the four store RPCs.
type SyncHandler struct {
	SyncService SyncService
	// Log receives internal errors; nil disables logging.
	Log *zap.Logger
}

// Upsert handles POST upsert_sync_data. It answers 204 on success.
func (h *SyncHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var p api.UpsertParams
	if !h.decode(w, r, &p) {
		return
	}
	env := models.Envelope{Ciphertext: p.EncryptedPayload, IV: p.IV, Salt: p.Salt}
	if err := h.SyncService.Upsert(r.Context(), p.UserHash, p.Origin, env, p.WriteToken); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Read handles POST read_sync_data. The body is the stored row or null.
func (h *SyncHandler) Read(w http.ResponseWriter, r *http.Request) {
	var p api.ReadParams
	if !h.decode(w, r, &p) {
		return
	}
	env, err := h.SyncService.Read(r.Context(), p.UserHash, p.Origin)
	if err != nil {
		h.fail(w, err)
		return
	}
	var row *api.SyncRow
	if env != nil {
		row = &api.SyncRow{EncryptedPayload: env.Ciphertext, IV: env.IV, Salt: env.Salt}
	}
	writeJSON(w, http.StatusOK, row)
}

// Delete handles POST delete_sync_data. It answers 204 whether or not a
// row existed.
func (h *SyncHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var p api.DeleteParams
	if !h.decode(w, r, &p) {
		return
	}
	if err := h.SyncService.Delete(r.Context(), p.UserHash, p.Origin, p.WriteToken); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles POST list_user_origins. The body is always a JSON array.
func (h *SyncHandler) List(w http.ResponseWriter, r *http.Request) {
	var p api.ListParams
	if !h.decode(w, r, &p) {
		return
	}
	origins, err := h.SyncService.List(r.Context(), p.UserHash)
	if err != nil {
		h.fail(w, err)
		return
	}
	rows := make([]api.OriginRow, 0, len(origins))
	for _, o := range origins {
		rows = append(rows, api.OriginRow{Origin: o.Origin, UpdatedAt: o.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, rows)
}

// decode reads a size-limited JSON body into v. On failure it writes the
// error response and returns false.
func (h *SyncHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}

func (h *SyncHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, service.ErrForbidden.Error())
	default:
		if h.Log != nil {
			h.Log.Error("rpc failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Message: msg})
}
