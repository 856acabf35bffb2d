package router

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"naskahlive/config"
	accountHandler "naskahlive/internal/account"
	accountRepository "naskahlive/internal/account/repository"
	accountService "naskahlive/internal/account/service"
	docHandler "naskahlive/internal/document"
	"naskahlive/internal/document/repository"
	"naskahlive/internal/document/service"
	"naskahlive/internal/identity"
	"naskahlive/internal/permission"
	"naskahlive/middleware"
	"naskahlive/socket"
)

// Setup wires repositories, services and handlers onto a chi router. The
// registry is shared with the caller, which runs its relay loop.
func Setup(cfg *config.Config, db *sql.DB, registry *socket.Registry) (http.Handler, error) {
	accounts := accountRepository.NewAccountRepository(db)
	docs := repository.NewDocumentRepository(db)

	resolvers := []identity.Resolver{identity.NewTokenResolver(accounts, cfg.Auth.TokenTTL)}
	if cfg.Auth.JWTSecret != "" {
		resolvers = append(resolvers, identity.NewJWTResolver(cfg.Auth.JWTSecret, accounts))
	}
	resolver := identity.Chain(resolvers...)

	oracle, err := permission.NewOracle(accounts, docs)
	if err != nil {
		return nil, err
	}

	accountH := accountHandler.NewAccountHandler(accountService.NewAccountService(accounts, cfg.Auth.TokenTTL))
	docH := docHandler.NewDocumentHandler(service.NewDocumentService(docs, accounts, oracle, registry))
	wsH := socket.NewHandler(registry, resolver, oracle, docs, cfg.Socket, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.Identify(resolver))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", accountH.Routes(middleware.RequireAuth))
	r.Route("/api/documents", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		docH.Routes(r)
	})

	r.Get("/ws/documents/{documentID}", wsH.ServeHTTP)

	return r, nil
}
