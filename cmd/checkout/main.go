// Package main запускает HTTP-сервер шлюза оформления покупок.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	stripeclient "github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/checkout-gateway/internal/backend"
	"github.com/mmeshcher/checkout-gateway/internal/config"
	"github.com/mmeshcher/checkout-gateway/internal/handler"
	"github.com/mmeshcher/checkout-gateway/internal/middleware"
	"github.com/mmeshcher/checkout-gateway/internal/payment"
	"github.com/mmeshcher/checkout-gateway/internal/repository"
	"github.com/mmeshcher/checkout-gateway/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	backendClient := backend.NewClient(cfg.BackendAddress)

	sc := &stripeclient.API{}
	sc.Init(cfg.StripeKey, nil)

	paymentClient := payment.NewClient(backendClient, sc.PaymentIntents)

	svc := service.NewService(repo, backendClient, paymentClient, logger, service.Options{
		ReturnURLBase: cfg.ReturnURLBase,
		PollInterval:  cfg.PollInterval,
		PollDeadline:  cfg.PollDeadline,
		SessionTTL:    cfg.SessionTTL,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret, svc)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой очистки истёкших сессий
	g.Go(func() error {
		svc.StartSessionCleanup(ctx, time.Hour)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting checkout gateway", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
