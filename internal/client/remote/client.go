// Package remote talks to the untrusted store holding encrypted snapshots.
//
// The store is consumed through four RPCs (upsert, read, delete, list).
// Responses are decoded into typed values at this boundary; anything that
// does not decode is reported as an error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/SessionSync/internal/api"
	"github.com/atinyakov/SessionSync/internal/models"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 16 << 20

// StatusError is returned when the store answers with a non-2xx status.
type StatusError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the store's error message.
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store returned %d", e.Status)
	}
	return e.Message
}

// Client is a remote store client bound to one endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient returns a Client for baseURL using hc for transport.
func NewClient(baseURL, apiKey string, hc *http.Client) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Upsert stores env for (accountID, origin), replacing any previous row.
func (c *Client) Upsert(ctx context.Context, accountID, origin string, env models.Envelope, writeToken string) error {
	return c.call(ctx, api.RPCUpsert, api.UpsertParams{
		UserHash:         accountID,
		Origin:           origin,
		EncryptedPayload: env.Ciphertext,
		IV:               env.IV,
		Salt:             env.Salt,
		WriteToken:       writeToken,
	}, nil)
}

// Read returns the envelope stored for (accountID, origin), or nil when
// nothing is stored.
func (c *Client) Read(ctx context.Context, accountID, origin string) (*models.Envelope, error) {
	var row *api.SyncRow
	if err := c.call(ctx, api.RPCRead, api.ReadParams{UserHash: accountID, Origin: origin}, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	if row.EncryptedPayload == "" || row.IV == "" || row.Salt == "" {
		return nil, errors.New("decode read_sync_data: incomplete row")
	}
	return &models.Envelope{
		Ciphertext: row.EncryptedPayload,
		IV:         row.IV,
		Salt:       row.Salt,
	}, nil
}

// Delete removes the row for (accountID, origin). Deleting a missing row succeeds.
func (c *Client) Delete(ctx context.Context, accountID, origin, writeToken string) error {
	return c.call(ctx, api.RPCDelete, api.DeleteParams{
		UserHash:   accountID,
		Origin:     origin,
		WriteToken: writeToken,
	}, nil)
}

// List returns the origins stored for accountID, most recently updated first.
func (c *Client) List(ctx context.Context, accountID string) ([]models.OriginRecord, error) {
	var rows []api.OriginRow
	if err := c.call(ctx, api.RPCList, api.ListParams{UserHash: accountID}, &rows); err != nil {
		return nil, err
	}
	out := make([]models.OriginRecord, 0, len(rows))
	for _, r := range rows {
		if r.Origin == "" {
			return nil, errors.New("decode list_user_origins: row without origin")
		}
		out = append(out, models.OriginRecord{Origin: r.Origin, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

// call posts params to the named RPC and decodes the response into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, name string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+api.PathPrefix+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(api.APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return &StatusError{Status: status, Message: e.Message}
	}
	return &StatusError{Status: status, Message: strings.TrimSpace(string(body))}
}
