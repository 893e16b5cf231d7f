package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/warden/internal/api/v1"
	"github.com/gosuda/warden/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterPlanRoutes(api, deps.Tokens)
	v1.RegisterInvokeRoutes(api, deps.Enforcer, deps.Cluster, deps.Ledger)
	v1.RegisterAuditRoutes(api, deps.Ledger)
	v1.RegisterSensingRoutes(api, deps.Cluster)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/audit", hub.ServeAudit)
}
