package dashapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akulichev/memberdash/internal/config"
	"github.com/akulichev/memberdash/internal/infra/authbackend"
	"github.com/akulichev/memberdash/internal/jobs/cleanup"
	pgrepo "github.com/akulichev/memberdash/internal/repo/postgres"
	redrepo "github.com/akulichev/memberdash/internal/repo/redis"
	authsvc "github.com/akulichev/memberdash/internal/services/auth"
	memberssvc "github.com/akulichev/memberdash/internal/services/members"
	rolessvc "github.com/akulichev/memberdash/internal/services/roles"
	routingsvc "github.com/akulichev/memberdash/internal/services/routing"
)

type App struct {
	cfg         config.Config
	logger      *zap.Logger
	server      *http.Server
	postgres    *pgxpool.Pool
	redis       *goredis.Client
	sessions    *authsvc.Manager
	cleanupJob  *cleanup.Job
	stopCleanup func()
	unwatch     func()
	httpRouter  http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	cacheRepo := redrepo.NewCacheRepo(redisClient)
	sessionStore := redrepo.NewSessionStore(redisClient)
	localStore := redrepo.NewLocalStore(redisClient)

	memberRepo := pgrepo.NewMemberRepo(pool)
	roleRepo := pgrepo.NewRoleRepo(pool)
	accountRepo := pgrepo.NewAccountRepo(pool)

	tokens := authbackend.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	backend := authbackend.New(accountRepo, sessionStore, localStore, tokens, authbackend.Config{
		RefreshTTL:               cfg.Auth.RefreshTTL,
		RequireEmailVerification: cfg.Auth.RequireEmailVerification,
	}, log)

	nav := newRouteRecorder(log)
	sessions := authsvc.NewManager(backend, cacheRepo, localStore, nav, log)
	verifier := memberssvc.NewVerifier(memberRepo, log)
	orchestrator := authsvc.NewOrchestrator(backend, verifier, sessions, authsvc.RetryPolicy{
		MaxAttempts:    cfg.Auth.Login.MaxAttempts,
		InitialDelay:   cfg.Auth.Login.InitialDelay,
		MaxDelay:       cfg.Auth.Login.MaxDelay,
		AttemptTimeout: cfg.Auth.Login.AttemptTimeout,
	}, log)

	resolver := rolessvc.NewResolver(roleRepo, log)
	roleSync := rolessvc.NewSyncService(roleRepo, resolver, cacheRepo, log)
	guard := routingsvc.NewGuard(sessions, resolver)

	// Role state follows the session: a new session loads its roles, a
	// cleared session resets the resolver back to unresolved.
	watchCtx := context.WithoutCancel(ctx)
	unwatch := sessions.Watch(func(state authsvc.SessionState) {
		if state.Loading {
			return
		}
		if state.Session == nil {
			resolver.Reset()
			return
		}
		if err := resolver.Load(watchCtx, state.Session.UserID); err != nil {
			log.Warn("role load after session change failed", zap.Error(err))
		}
	})

	sessions.Start(ctx)

	cleanupJob := cleanup.NewUnconfirmedAccountsJob(accountRepo, cfg.Cleanup.UnconfirmedRetention, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		Orchestrator:   orchestrator,
		SessionManager: sessions,
		RoleResolver:   resolver,
		RoleSync:       roleSync,
		RouteGuard:     guard,
		Logger:         log,
		Config:         cfg,
	})

	app := &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		sessions:   sessions,
		cleanupJob: cleanupJob,
		unwatch:    unwatch,
		httpRouter: r,
	}

	if pool != nil {
		cleanupCtx, stopCleanup := context.WithCancel(context.WithoutCancel(ctx))
		app.stopCleanup = stopCleanup
		go app.runCleanupLoop(cleanupCtx)
	}

	return app, nil
}

func (a *App) runCleanupLoop(ctx context.Context) {
	interval := a.cfg.Cleanup.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	if err := a.cleanupJob.Run(ctx); err != nil {
		a.logger.Warn("cleanup run failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.cleanupJob.Run(ctx); err != nil {
				a.logger.Warn("cleanup run failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Run() error {
	a.logger.Info("dashboard server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.unwatch != nil {
		a.unwatch()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
