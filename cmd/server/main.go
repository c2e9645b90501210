package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dailyjokes/internal/auth"
	"dailyjokes/internal/config"
	"dailyjokes/internal/database"
	"dailyjokes/internal/delivery"
	"dailyjokes/internal/generator"
	"dailyjokes/internal/mailer"
	"dailyjokes/internal/models"
	"dailyjokes/internal/server"
	"dailyjokes/pkg/logger"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrEmptyDBPassword) {
			fmt.Fprintln(os.Stderr, "Error: DB_PASSWORD environment variable is required")
		} else if errors.Is(err, config.ErrEmptySMTPPassword) {
			fmt.Fprintln(os.Stderr, "Error: SMTP_PASSWORD environment variable is required")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, nil)
	logger.Info("Starting daily-jokes",
		logger.String("app", cfg.App.Name),
		logger.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		var dbErr *database.ConnectionError
		if errors.As(err, &dbErr) {
			logger.Error("Failed to connect to database",
				logger.Err(dbErr),
				logger.String("host", cfg.Database.Host),
				logger.Int("port", cfg.Database.Port),
			)
		} else {
			logger.Error("Failed to connect to database",
				logger.Err(err),
			)
		}
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to database")

	subscriberRepo := database.NewSubscriberRepository(db)
	jokeRepo := database.NewJokeRepository(db)
	categoryRepo := database.NewCategoryRepository(db)
	deliveryRepo := database.NewDeliveryRepository(db)
	adminRepo := database.NewAdminRepository(db)

	verifier := auth.NewVerifier(adminRepo)
	if err := verifier.EnsureDefaultAdmin(ctx); err != nil {
		logger.Error("Failed to ensure default admin", logger.Err(err))
		os.Exit(1)
	}

	mail := mailer.New(cfg.SMTP)
	gen := generator.New(cfg.Generator)

	dispatcher := delivery.NewDispatcher(
		subscriberRepo,
		jokeRepo,
		deliveryRepo,
		mail,
		delivery.Policy{Window: cfg.Delivery.StalenessWindow},
	)

	dailyAt, err := models.ParseDeliveryTime(cfg.Delivery.DailyAt)
	if err != nil {
		logger.Error("Invalid daily delivery time",
			logger.Err(err),
			logger.String("daily_at", cfg.Delivery.DailyAt),
		)
		os.Exit(1)
	}

	trigger, err := delivery.NewTrigger(dispatcher, cfg.Delivery.Schedule, dailyAt)
	if err != nil {
		logger.Error("Failed to create delivery trigger", logger.Err(err))
		os.Exit(1)
	}

	if err := trigger.Start(ctx); err != nil {
		logger.Error("Failed to start delivery trigger", logger.Err(err))
		os.Exit(1)
	}
	logger.Info("Delivery trigger started",
		logger.String("schedule", cfg.Delivery.Schedule),
	)

	srv := server.New(cfg.Server, subscriberRepo, jokeRepo, categoryRepo, mail, gen, dispatcher, verifier)
	httpServer := srv.ListenAndServe()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	trigger.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down http server", logger.Err(err))
	}

	logger.Info("Server stopped gracefully")
}
