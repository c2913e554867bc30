package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/database"
	"github.com/aligovro/newschools-sub000/internal/logger"
	"github.com/aligovro/newschools-sub000/internal/router"
	"github.com/aligovro/newschools-sub000/pkg/payment"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log, err := logger.New(cfg.Server.Env)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gateway, err := newGateway(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	engine, err := router.Setup(ctx, cfg, db, gateway, log)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("gateway", gateway.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	log.Info("shutting down...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newGateway(cfg *config.Config, log *zap.Logger) (payment.Gateway, error) {
	switch cfg.Payment.Gateway {
	case "yookassa", "":
		if cfg.YooKassa.ShopID == "" || cfg.YooKassa.SecretKey == "" {
			return nil, errors.New("yookassa: YOOKASSA_SHOPID and YOOKASSA_SECRETKEY are required")
		}
		gw := payment.NewYooKassaGateway(cfg.YooKassa.BaseURL, cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey, cfg.YooKassa.Timeout, log)
		gw.MaxRetries = cfg.YooKassa.MaxRetries
		gw.RetryDelay = cfg.YooKassa.RetryDelay
		return gw, nil
	case "sandbox":
		if cfg.IsProduction() {
			return nil, errors.New("sandbox gateway is not allowed in production")
		}
		log.Warn("using in-memory sandbox gateway; payments are simulated")
		return payment.NewSandboxGateway(cfg.Payment.ReturnBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Payment.Gateway)
	}
}
