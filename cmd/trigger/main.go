// Command trigger runs the pending-payment reconciliation daemon: a periodic
// pass that settles or reverts in-flight lightning payments against the
// node's view, plus an operational HTTP surface.
package main

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/chriszackpinto/galoy/internal/config"
	"github.com/chriszackpinto/galoy/internal/health"
	"github.com/chriszackpinto/galoy/internal/ledger"
	"github.com/chriszackpinto/galoy/internal/lnd"
	"github.com/chriszackpinto/galoy/internal/lock"
	"github.com/chriszackpinto/galoy/internal/logging"
	"github.com/chriszackpinto/galoy/internal/paymentflow"
	"github.com/chriszackpinto/galoy/internal/reconciliation"
	"github.com/chriszackpinto/galoy/internal/server"
	"github.com/chriszackpinto/galoy/internal/wallets"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFmt)

	logger.Info("starting trigger",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	ctx := context.Background()
	checks := health.NewRegistry()

	var (
		ledgerStore ledger.Store
		flowStore   paymentflow.Store
		walletRepo  wallets.Repository
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		ledgerStore = ledger.NewPostgresStore(db)
		flowStore = paymentflow.NewPostgresStore(db)
		walletRepo = wallets.NewPostgresRepository(db)
		checks.Register("postgres", health.DatabaseChecker(db))
		logger.Info("using postgres stores")
	} else {
		ledgerStore = ledger.NewMemoryStore()
		flowStore = paymentflow.NewMemoryStore()
		walletRepo = wallets.NewMemoryRepository()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var locker lock.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		locker = lock.NewRedisLocker(client)
		checks.Register("redis", health.RedisChecker(client))
		logger.Info("using redis payment lock")
	} else {
		locker = lock.NewMemoryLocker()
		logger.Warn("REDIS_URL not set, using in-process payment lock")
	}

	var lndClient lnd.Client
	if cfg.LndEnabled() {
		lndClient, err = lnd.NewGRPCClient(ctx, lnd.Config{
			GRPCAddr:     cfg.LndGRPCAddr,
			TLSCertPath:  cfg.LndTLSCertPath,
			MacaroonPath: cfg.LndMacaroonPath,
		})
		if err != nil {
			logger.Error("failed to connect to lightning node", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to lightning node", "addr", cfg.LndGRPCAddr)
	} else {
		lndClient = noNodeClient{}
		logger.Warn("no lightning node configured, payments will stay pending")
	}

	reimburser := wallets.NewReimburser(ledgerStore, ledger.DefaultStaticAccounts(), logger)

	reconciler := reconciliation.New(reconciliation.Config{
		Ledger:     ledgerStore,
		Lnd:        lndClient,
		Locker:     locker,
		Flows:      flowStore,
		Wallets:    walletRepo,
		Reimburser: reimburser,
		Logger:     logger,
		Workers:    cfg.ReconcileWorkers,
	})
	timer := reconciliation.NewTimer(reconciler, cfg.ReconcileInterval, logger)

	srv := server.New(cfg, reconciler, timer, checks, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// noNodeClient is the demo-mode lightning client: every lookup reports the
// payment as unknown, so pending records are left untouched.
type noNodeClient struct{}

func (noNodeClient) LookupPayment(context.Context, string, ledger.PaymentHash) (*lnd.PaymentLookup, error) {
	return nil, lnd.ErrPaymentNotFound
}
