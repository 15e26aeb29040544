// Command settler reconciles pending payments whose callers never came
// back to verify them. Each run asks the gateway about every stale pending
// payment and settles it the same way the verify endpoint does.
package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("gateway", cfg.PaywayBase).
		Int("workers", cfg.SettleWorkers).
		Dur("stale_after", cfg.SettleStale).
		Msg("settler starting")

	zone, err := domain.NewZone(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid branch timezone")
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}

	gw, err := payway.New(cfg.PaywayBase, cfg.PaywayKey, cfg.PaywayRPS, cfg.PaywayTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payment gateway client")
	}
	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer rdb.Close()

	// confirmations still drop the occupied-times cache and reach room subscribers
	events := notify.New(cfg.NotifyBackend, rdb, cfg.RabbitURL, cfg.RabbitQueue)
	payments := app.NewPayments(app.Deps{
		Store:    mysqlrepo.New(db),
		Notifier: events,
		Cache:    redisad.New(rdb),
		CacheTTL: cfg.CacheTTL,
		Zone:     zone,
		Log:      log.Logger,
	}, gw)

	stale, err := payments.StalePending(ctx, cfg.SettleStale, cfg.SettleBatch)
	if err != nil {
		log.Fatal().Err(err).Msg("list stale payments failed")
	}
	log.Info().Int("count", len(stale)).Msg("stale pending payments")

	sem := semaphore.NewWeighted(int64(cfg.SettleWorkers))
	var wg sync.WaitGroup

	for _, p := range stale {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("settler interrupted")
			break
		}

		wg.Add(1)
		go func(txID string) {
			defer wg.Done()
			defer sem.Release(1)

			s, err := payments.VerifyAndSettle(ctx, txID)
			if err != nil {
				observability.ObserveSettlement("error", "sweep")
				log.Warn().Str("transaction_id", txID).Err(err).Msg("settle failed")
				return
			}
			observability.ObserveSettlement(s.Outcome(), "sweep")
			log.Info().Str("transaction_id", txID).Str("outcome", s.Outcome()).
				Bool("confirmed", s.Confirmed).Msg("settled")
		}(p.TransactionID)
	}

	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := events.Close(drainCtx); err != nil {
		log.Warn().Err(err).Msg("pending events not delivered")
	}
	log.Info().Msg("settlement sweep completed")
}
