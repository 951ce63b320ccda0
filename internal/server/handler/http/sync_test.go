package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/SessionSync/internal/api"
	"github.com/atinyakov/SessionSync/internal/models"
	handler "github.com/atinyakov/SessionSync/internal/server/handler/http"
	"github.com/atinyakov/SessionSync/internal/service"
)

// fakeSyncService records calls and returns preconfigured results.
type fakeSyncService struct {
	called         string
	receivedHash   string
	receivedOrigin string
	receivedToken  string
	receivedEnv    models.Envelope

	env     *models.Envelope
	origins []models.OriginRecord
	err     error
}

func (f *fakeSyncService) Upsert(_ context.Context, userHash, origin string, env models.Envelope, writeToken string) error {
	f.called, f.receivedHash, f.receivedOrigin, f.receivedEnv, f.receivedToken = "upsert", userHash, origin, env, writeToken
	return f.err
}

func (f *fakeSyncService) Read(_ context.Context, userHash, origin string) (*models.Envelope, error) {
	f.called, f.receivedHash, f.receivedOrigin = "read", userHash, origin
	return f.env, f.err
}

func (f *fakeSyncService) Delete(_ context.Context, userHash, origin, writeToken string) error {
	f.called, f.receivedHash, f.receivedOrigin, f.receivedToken = "delete", userHash, origin, writeToken
	return f.err
}

func (f *fakeSyncService) List(_ context.Context, userHash string) ([]models.OriginRecord, error) {
	f.called, f.receivedHash = "list", userHash
	return f.origins, f.err
}

func post(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/rest/v1/rpc/x", &buf)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e.Message
}

func TestSyncHandler_BadJSON(t *testing.T) {
	h := &handler.SyncHandler{SyncService: &fakeSyncService{}}

	for name, fn := range map[string]http.HandlerFunc{
		"upsert": h.Upsert, "read": h.Read, "delete": h.Delete, "list": h.List,
	} {
		w := post(t, fn, "not-a-json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d; want %d", name, w.Code, http.StatusBadRequest)
		}
		if msg := errorMessage(t, w); msg != "invalid body" {
			t.Errorf("%s: message = %q", name, msg)
		}
	}
}

func TestSyncHandler_UnknownField(t *testing.T) {
	h := &handler.SyncHandler{SyncService: &fakeSyncService{}}
	w := post(t, h.List, `{"p_user_hash":"a","p_password":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSyncHandler_BodyTooLarge(t *testing.T) {
	fake := &fakeSyncService{}
	h := &handler.SyncHandler{SyncService: fake}

	huge := fmt.Sprintf(`{"p_user_hash":"a","p_origin":"o","p_encrypted_payload":"%s"}`,
		strings.Repeat("A", handler.MaxBodyBytes))
	w := post(t, h.Upsert, huge)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if fake.called != "" {
		t.Error("service must not be called")
	}
}

func TestSyncHandler_Upsert(t *testing.T) {
	fake := &fakeSyncService{}
	h := &handler.SyncHandler{SyncService: fake}

	w := post(t, h.Upsert, api.UpsertParams{
		UserHash: "acct", Origin: "https://x.test",
		EncryptedPayload: "Y3Q=", IV: "aXY=", Salt: "c2FsdA==", WriteToken: "tok",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusNoContent)
	}
	want := models.Envelope{Ciphertext: "Y3Q=", IV: "aXY=", Salt: "c2FsdA=="}
	if fake.called != "upsert" || fake.receivedHash != "acct" || fake.receivedOrigin != "https://x.test" ||
		fake.receivedToken != "tok" || fake.receivedEnv != want {
		t.Errorf("unexpected call: %+v", fake)
	}
}

func TestSyncHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantMsg  string
	}{
		{fmt.Errorf("%w: origin length", service.ErrInvalidInput), http.StatusBadRequest, "invalid input: origin length"},
		{service.ErrForbidden, http.StatusForbidden, "invalid write token"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		h := &handler.SyncHandler{SyncService: &fakeSyncService{err: tc.err}}
		w := post(t, h.Delete, api.DeleteParams{UserHash: "a", Origin: "o", WriteToken: "t"})
		if w.Code != tc.wantCode {
			t.Errorf("%v: status = %d; want %d", tc.err, w.Code, tc.wantCode)
		}
		if msg := errorMessage(t, w); msg != tc.wantMsg {
			t.Errorf("%v: message = %q; want %q", tc.err, msg, tc.wantMsg)
		}
	}
}

func TestSyncHandler_Read(t *testing.T) {
	fake := &fakeSyncService{env: &models.Envelope{Ciphertext: "Y3Q=", IV: "aXY=", Salt: "c2FsdA=="}}
	h := &handler.SyncHandler{SyncService: fake}

	w := post(t, h.Read, api.ReadParams{UserHash: "acct", Origin: "https://x.test"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q; want %q", ct, "application/json")
	}
	var row api.SyncRow
	if err := json.NewDecoder(w.Body).Decode(&row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row.EncryptedPayload != "Y3Q=" || row.IV != "aXY=" || row.Salt != "c2FsdA==" {
		t.Errorf("row = %+v", row)
	}

	fake.env = nil
	w = post(t, h.Read, api.ReadParams{UserHash: "acct", Origin: "https://none.test"})
	if body := strings.TrimSpace(w.Body.String()); body != "null" {
		t.Errorf("body = %q; want null", body)
	}
}

func TestSyncHandler_List(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSyncService{origins: []models.OriginRecord{{Origin: "https://a.test", UpdatedAt: ts}}}
	h := &handler.SyncHandler{SyncService: fake}

	w := post(t, h.List, api.ListParams{UserHash: "acct"})
	var rows []api.OriginRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Origin != "https://a.test" || !rows[0].UpdatedAt.Equal(ts) {
		t.Errorf("rows = %+v", rows)
	}

	fake.origins = nil
	w = post(t, h.List, api.ListParams{UserHash: "acct"})
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q; want []", body)
	}
}
