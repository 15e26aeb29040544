package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "roomhub/internal/adapters/http_server"
	"roomhub/internal/adapters/notify"
	"roomhub/internal/adapters/observability"
	"roomhub/internal/adapters/payway"
	redisad "roomhub/internal/adapters/redis"
	"roomhub/internal/app"
	"roomhub/internal/domain"
	"roomhub/internal/shared"
	mysqlrepo "roomhub/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr)

	zone, err := domain.NewZone(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.Timezone).Msg("invalid branch timezone")
	}

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rdb.Close()

	events := notify.New(cfg.NotifyBackend, rdb, cfg.RabbitURL, cfg.RabbitQueue)

	gw, err := payway.New(cfg.PaywayBase, cfg.PaywayKey, cfg.PaywayRPS, cfg.PaywayTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payment gateway client")
	}

	// deps
	d := app.Deps{
		Store:    mysqlrepo.New(db),
		Notifier: events,
		Cache:    redisad.New(rdb),
		CacheTTL: cfg.CacheTTL,
		Zone:     zone,
		Log:      log.Logger,
	}

	// http
	srv := server.New(server.WithRequestTimeout(cfg.HTTPTimeout))
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Bookings:     app.NewBookings(d),
		Payments:     app.NewPayments(d, gw),
		Availability: app.NewAvailability(d),
	}, []byte(cfg.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.ListenAndServe() }()
	log.Info().Str("addr", cfg.HTTPAddr).Str("tz", zone.Name()).Msg("API listening")

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
	}

	// handlers finish first so their events are queued before the drain
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := events.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending events not delivered")
	}
	log.Info().Msg("API stopped")
}
