package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-crabs/internal/api"
	"github.com/npezzotti/go-crabs/internal/clock"
	"github.com/npezzotti/go-crabs/internal/config"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/messaging"
	"github.com/npezzotti/go-crabs/internal/migrations"
	"github.com/npezzotti/go-crabs/internal/presence"
	"github.com/npezzotti/go-crabs/internal/server"
	"github.com/npezzotti/go-crabs/internal/stats"
	"github.com/npezzotti/go-crabs/internal/sweeper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	store          string
	dsn            string
	redisAddr      string
	redisPassword  string
	signingKey     string
	logLevel       string
	sweepInterval  time.Duration
	allowedOrigins stringSliceFlag
)

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().With("service", "go-crabs"), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (database.CrabRepository, error) {
	switch cfg.Store {
	case config.StorePostgres:
		repo, err := database.NewPgCrabRepository(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(repo.DB(), logger); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, nil
	case config.StoreRedis:
		return database.NewRedisCrabRepository(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
	default:
		return database.NewMemCrabRepository(), nil
	}
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}

	flag.StringVar(&addr, "addr", config.EnvOr("CRABS_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&store, "store", config.EnvOr("CRABS_STORE", config.StoreMemory), "storage backend: memory, postgres or redis")
	flag.StringVar(&dsn, "dsn", config.EnvOr("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&redisAddr, "redis-addr", config.EnvOr("REDIS_ADDR", "localhost:6379"), "redis address")
	flag.StringVar(&redisPassword, "redis-password", config.EnvOr("REDIS_PASSWORD", ""), "redis password")
	flag.StringVar(&signingKey, "signing-key", config.EnvOr("CRABS_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.StringVar(&logLevel, "log-level", config.EnvOr("CRABS_LOG_LEVEL", "info"), "log level")
	flag.DurationVar(&sweepInterval, "sweep-interval", config.DurationEnvOr("CRABS_SWEEP_INTERVAL", 5*time.Second), "how often expired messages are deleted")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger, err := newLogger(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(allowedOrigins) == 0 {
		if v := config.EnvOr("CRABS_ALLOWED_ORIGINS", ""); v != "" {
			allowedOrigins.Set(v)
		}
	}

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:     addr,
		Store:          store,
		DatabaseDSN:    dsn,
		RedisAddr:      redisAddr,
		RedisPassword:  redisPassword,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		SweepInterval:  sweepInterval,
	})
	if err != nil {
		logger.Fatalw("config", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("open store", "store", cfg.Store, "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorw("store close", "error", err)
		}
	}()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	clk := clock.Real()
	seed := uint64(time.Now().UnixNano())
	presenceManager := presence.NewManager(db, clk, rand.New(rand.NewPCG(seed, seed>>1)), logger)
	messageManager := messaging.NewManager(db, clk, logger)

	crabServer := server.NewCrabServer(logger, presenceManager, messageManager, statsUpdater)
	srv := api.NewCrabApp(mux, logger, crabServer, db, presenceManager, messageManager, statsUpdater, cfg)
	scheduler := sweeper.NewScheduler(messageManager, crabServer, statsUpdater, logger, cfg.SweepInterval)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go crabServer.Run()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		scheduler.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infow("received signal", "signal", sig.String())
	case err := <-errCh:
		logger.Errorw("server", "error", err)
	}

	stop()
	<-sweepDone

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Errorw("HTTP server shutdown", "error", err)
	}

	if err := crabServer.Shutdown(shutDownCtx); err != nil {
		logger.Errorw("crab server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
}
