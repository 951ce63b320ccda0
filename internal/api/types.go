// Package api defines the RPC request/response types shared between the sync
// client and the reference store server.
//
// Every RPC is a POST to PathPrefix + name with a JSON object of parameters.
// Parameter names follow the browser extension's store so both clients can
// share one backend.
package api

import "time"

// PathPrefix is the route prefix of every RPC.
const PathPrefix = "/rest/v1/rpc/"

// RPC names.
const (
	RPCUpsert = "upsert_sync_data"
	RPCRead   = "read_sync_data"
	RPCDelete = "delete_sync_data"
	RPCList   = "list_user_origins"
)

// APIKeyHeader carries the public API key.
const APIKeyHeader = "apikey"

// UpsertParams is the body of upsert_sync_data.
type UpsertParams struct {
	UserHash         string `json:"p_user_hash"`
	Origin           string `json:"p_origin"`
	EncryptedPayload string `json:"p_encrypted_payload"`
	IV               string `json:"p_iv"`
	Salt             string `json:"p_salt"`
	WriteToken       string `json:"p_write_token"`
}

// ReadParams is the body of read_sync_data.
type ReadParams struct {
	UserHash string `json:"p_user_hash"`
	Origin   string `json:"p_origin"`
}

// DeleteParams is the body of delete_sync_data.
type DeleteParams struct {
	UserHash   string `json:"p_user_hash"`
	Origin     string `json:"p_origin"`
	WriteToken string `json:"p_write_token"`
}

// ListParams is the body of list_user_origins.
type ListParams struct {
	UserHash string `json:"p_user_hash"`
}

// SyncRow is returned by read_sync_data; the response body is JSON null
// when nothing is stored.
type SyncRow struct {
	EncryptedPayload string `json:"encrypted_payload"`
	IV               string `json:"iv"`
	Salt             string `json:"salt"`
}

// OriginRow is one element of the list_user_origins response.
type OriginRow struct {
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}
