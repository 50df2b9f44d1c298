package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tracklight/internal/activestate"
	"tracklight/internal/api"
	"tracklight/internal/audit"
	"tracklight/internal/auth"
	"tracklight/internal/broadcast"
	"tracklight/internal/config"
	"tracklight/internal/engine"
	"tracklight/internal/geo"
	"tracklight/internal/store"
	"tracklight/internal/telemetry"
	"tracklight/internal/tracker"
	"tracklight/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := config.SetupLogging(cfg.LogLevel, cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	active, err := newActiveState(ctx, cfg, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("active state init failed")
	}
	defer active.Close()

	geoResolver := newGeoResolver(cfg, logger)

	telemetry.Init()

	hub := broadcast.NewHub(logger)

	var events engine.Dispatcher
	var dispatcher *webhook.Dispatcher
	if len(cfg.WebhookURLs) > 0 {
		dispatcher = webhook.NewDispatcher(webhook.Config{
			URLs:       cfg.WebhookURLs,
			Secret:     cfg.WebhookSecret,
			MaxRetries: 3,
		}, logger)
		dispatcher.Start()
		defer dispatcher.Close()
		events = dispatcher
	}

	eng := engine.New(engine.Deps{
		Store:       st,
		Active:      active,
		Geo:         geoResolver,
		Roller:      newRoller(cfg),
		Broadcaster: hub,
		Events:      events,
		Logger:      logger,
	})

	tr := tracker.New(st, geoResolver, eng, logger)

	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.JWTTTL)
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}

	auditSvc := audit.NewService(audit.NewLogSink(logger), logger, 256)
	defer auditSvc.Close()

	srvAPI := api.NewServer(st, tr, eng, authSvc, hub, active, auditSvc, geoResolver, logger, api.Config{
		RateLimitPerIP: cfg.RateLimitPerIP,
		CORSOrigins:    cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srvAPI.Router(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: telemetry.Handler(),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweeper := tracker.NewSweeper(st, cfg.SweepInterval, cfg.InactivityThreshold, logger)
	go sweeper.Run(sweepCtx)

	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreType).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	stopSweep()
	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)
	logger.Info().Msg("stopped")
}

// newActiveState picks the active-script backend. "store" keeps the state
// next to the primary store; "redis" shares it across replicas.
func newActiveState(ctx context.Context, cfg *config.Config, st store.Store) (activestate.State, error) {
	if cfg.ActiveStateBackend == "redis" {
		return activestate.NewRedisState(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	if pg, ok := st.(*store.PostgresStore); ok {
		return activestate.NewPostgresState(ctx, pg.Pool())
	}
	return activestate.NewMemoryState(), nil
}

func newGeoResolver(cfg *config.Config, logger zerolog.Logger) geo.Resolver {
	if cfg.GeoDBPath == "" {
		logger.Warn().Msg("no geo database configured, all visitors resolve to unknown country")
		return geo.NopResolver{}
	}
	r, err := geo.OpenMaxMind(cfg.GeoDBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.GeoDBPath).Msg("geo database open failed")
	}
	return r
}

func newRoller(cfg *config.Config) engine.Roller {
	if cfg.AdmissionMode == "sticky" {
		return engine.StickyRoller{Salt: cfg.AdmissionSalt}
	}
	return engine.RandomRoller{}
}
