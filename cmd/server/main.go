// Command server runs the Privora auth API: HTTP surface in front of the
// credential engine, redis for the OTP ledger, postgres for accounts, SMTP
// for code delivery.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/privora/privauth"
	"github.com/privora/privauth/httpapi"
	"github.com/privora/privauth/internal/config"
	"github.com/privora/privauth/mail"
	"github.com/privora/privauth/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	provider, cleanup, err := newAccountProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	engineCfg := privauth.DefaultConfig()
	engineCfg.JWT.SigningKey = []byte(cfg.JWT.Secret)

	engine, err := privauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountProvider(provider).
		WithMailer(mailer).
		WithAuditSink(privauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "environment", cfg.Environment)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newAccountProvider(ctx context.Context, cfg *config.Config) (privauth.AccountProvider, func(), error) {
	provider, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := provider.EnsureSchema(ctx); err != nil {
		provider.Close()
		return nil, nil, err
	}
	return provider, func() { provider.Close() }, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (mail.Mailer, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("no smtp host configured, codes will not be delivered")
		return mail.NoOpMailer{}, nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTP.FromEmail,
	})
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
