package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/warden/internal/audit"
	"github.com/gosuda/warden/internal/config"
	"github.com/gosuda/warden/internal/enforce"
	"github.com/gosuda/warden/internal/intent"
	"github.com/gosuda/warden/internal/notify"
	"github.com/gosuda/warden/internal/policy"
	"github.com/gosuda/warden/internal/server"
	"github.com/gosuda/warden/internal/sim"
	"github.com/gosuda/warden/internal/store/postgres"
	redisstore "github.com/gosuda/warden/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("WARDEN_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("WARDEN_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Load and validate the policy rule set. Ambiguous rule files refuse to
	// start the gateway; there is no degraded evaluation mode.
	engine, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return err
	}
	log.Info().Int("rules", len(engine.Rules())).Str("file", cfg.Policy.File).Msg("policy loaded")

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	rdb, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Ledger appends go to postgres and are mirrored to the audit stream.
	ledger := audit.NewPublishingLedger(store.Ledger(), rdb)

	// Replay store: atomic insert-if-absent on redis.
	replays := redisstore.NewReplayStore(rdb, cfg.Intent.ReplayRetention)

	// Security notifier: Slack when configured, structured log otherwise.
	var notifier enforce.SecurityNotifier = notify.LogNotifier{}
	if cfg.Slack.BotToken != "" && cfg.Slack.SecurityChannel != "" {
		notifier = notify.NewSlackNotifier(slacklib.New(cfg.Slack.BotToken), cfg.Slack.SecurityChannel)
		log.Info().Str("channel", cfg.Slack.SecurityChannel).Msg("Slack security notifications enabled")
	}

	tokens := intent.New(engine, store.Plans(), ledger, cfg.Intent.Secret, cfg.Intent.TTL)
	enforcer := enforce.New(cfg.Intent.Secret, replays, ledger, notifier)
	cluster := sim.NewCluster()

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, server.Deps{
		Tokens:   tokens,
		Enforcer: enforcer,
		Cluster:  cluster,
		Ledger:   ledger,
		Streams:  rdb,
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
