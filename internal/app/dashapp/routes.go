package dashapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/config"
	authsvc "github.com/akulichev/memberdash/internal/services/auth"
	rolessvc "github.com/akulichev/memberdash/internal/services/roles"
	routingsvc "github.com/akulichev/memberdash/internal/services/routing"
	"github.com/akulichev/memberdash/internal/transport/http/handlers"
)

type Dependencies struct {
	Orchestrator   *authsvc.Orchestrator
	SessionManager *authsvc.Manager
	RoleResolver   *rolessvc.Resolver
	RoleSync       *rolessvc.SyncService
	RouteGuard     *routingsvc.Guard
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Orchestrator, deps.SessionManager)
	rolesHandler := handlers.NewRolesHandler(deps.RoleResolver, deps.RoleSync)
	accessHandler := handlers.NewAccessHandler(deps.RouteGuard)
	healthHandler := handlers.NewHealthHandler()

	r.Get("/healthz", healthHandler.Get)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", rolesHandler.State)
			r.Post("/sync", rolesHandler.Sync)
			r.Post("/grant", rolesHandler.Grant)
			r.Post("/revoke", rolesHandler.Revoke)
		})
		r.Get("/access/{tab}", accessHandler.Decide)
	})
}
