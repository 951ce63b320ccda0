package http

import (
	"net/http"
	"strings"

	"github.com/atinyakov/SessionSync/internal/api"
	"github.com/atinyakov/SessionSync/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the snapshot store.
//
// Routes:
//
//	GET  /healthz                           → healthHandler.Health
//	POST /rest/v1/rpc/upsert_sync_data      → syncHandler.Upsert
//	POST /rest/v1/rpc/read_sync_data        → syncHandler.Read
//	POST /rest/v1/rpc/delete_sync_data      → syncHandler.Delete
//	POST /rest/v1/rpc/list_user_origins     → syncHandler.List
//
// Every request is logged. RPCs additionally require a JSON body and one of
// apiKeys when any are configured.
func NewRouter(
	syncHandler *SyncHandler,
	healthHandler *HealthHandler,
	apiKeys []string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/healthz", healthHandler.Health)

	r.Route(strings.TrimSuffix(api.PathPrefix, "/"), func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Use(middleware.APIKey(apiKeys))

		r.Post("/"+api.RPCUpsert, syncHandler.Upsert)
		r.Post("/"+api.RPCRead, syncHandler.Read)
		r.Post("/"+api.RPCDelete, syncHandler.Delete)
		r.Post("/"+api.RPCList, syncHandler.List)
	})

	return r
}
