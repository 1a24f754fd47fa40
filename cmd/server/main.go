// Package main runs the daily spin service: the Telegram bot, the web app
// API and the per-user wheel sessions behind both.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/api"
	"telegram-daily-spin/internal/asset"
	"telegram-daily-spin/internal/bot"
	"telegram-daily-spin/internal/bridge"
	"telegram-daily-spin/internal/config"
	"telegram-daily-spin/internal/handler"
	"telegram-daily-spin/internal/kv"
	"telegram-daily-spin/internal/pkg/db"
	"telegram-daily-spin/internal/pkg/migrate"
	"telegram-daily-spin/internal/pkg/token"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/repository"
	"telegram-daily-spin/internal/service"
	"telegram-daily-spin/internal/session"
	"telegram-daily-spin/internal/spin"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret is required")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Migrate {
		if err := migrate.Up(cfg.Database.DSN()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
	}

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	txManager, err := manager.New(trmpgx.NewDefaultFactory(dbPool.Pool))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transaction manager")
	}

	wallet := service.NewWalletService(
		repository.NewUserRepository(dbPool.Pool),
		repository.NewRecordRepository(dbPool.Pool),
		repository.NewTransactionRepository(dbPool.Pool),
		txManager,
		cfg.Wallet.InitialBalance,
	)

	catalog := prize.DefaultCatalog()
	if cfg.Prizes.File != "" {
		catalog, err = prize.LoadCatalog(cfg.Prizes.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Prizes.File).Msg("Failed to load prize table")
		}
	}
	log.Info().
		Int("prizes", catalog.Prizes.Len()).
		Float64("total_weight", catalog.Prizes.TotalWeight()).
		Msg("Prize table loaded")

	loader := asset.NewLoader(os.DirFS(cfg.Assets.Dir))
	defer loader.Close()

	settings, err := kv.Open(cfg.Storage.AppName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open settings storage")
	}

	client, err := bot.NewClient(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	claims := bridge.New(client, cfg.Claims.ChatID, cfg.Claims.Timeout)
	if cfg.Claims.ChatID == 0 {
		log.Warn().Msg("claims.chat_id not set, collectibles cannot be sent out")
	}

	sessions, err := session.NewManager(
		session.Config{
			Spin: spin.Config{
				BaseDistance:  cfg.Spin.BaseDistance,
				Jitter:        cfg.Spin.Jitter,
				Deceleration:  cfg.Spin.Deceleration,
				SettleDelay:   cfg.Spin.SettleDelay,
				Snap:          cfg.Spin.Snap,
				RevealDelay:   cfg.Spin.RevealDelay,
				RevealTimeout: cfg.Spin.RevealTimeout,
				IdleSpeed:     cfg.Spin.IdleSpeed,
			},
			Layout:        cfg.Wheel.Layout(),
			SyncInterval:  cfg.Sync.Interval,
			WriteTimeout:  cfg.Sync.Timeout,
			FrameInterval: cfg.Session.FrameInterval,
			IdleTTL:       cfg.Session.IdleTTL,
			LockTimeout:   cfg.Session.LockTimeout,
		},
		wallet,
		claims,
		catalog,
		loader,
		session.WithRevealNotifier(handler.NewRevealNotifier(client).Notify),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}

	apiHandler := api.NewHandler(api.HandlerDeps{
		Wheel:          sessions,
		Settings:       settings,
		History:        wallet,
		Catalog:        catalog,
		Tokens:         token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		BotToken:       cfg.Bot.Token,
		InitDataMaxAge: cfg.Auth.InitDataMaxAge,
		Ping:           dbPool.HealthCheck,
	})
	srv := api.NewServer(cfg.HTTP.Addr, apiHandler.Router(cfg.HTTP.AllowedOrigins), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)

	telegramBot, err := bot.New(&bot.Dependencies{
		Client:  client,
		Config:  cfg,
		Wheel:   sessions,
		Catalog: catalog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		sessions.Run(runCtx)
		close(runDone)
	}()

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	go telegramBot.Start()

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	telegramBot.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancelRun()
	<-runDone
	sessions.Close()

	log.Info().Msg("Stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
