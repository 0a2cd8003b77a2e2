// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiqx/core-service/internal/config"
	"github.com/aiqx/core-service/internal/fileservice"
	"github.com/aiqx/core-service/internal/logging"
	"github.com/aiqx/core-service/internal/notify"
	"github.com/aiqx/core-service/internal/persistence/postgres"
	"github.com/aiqx/core-service/internal/repository"
	httptransport "github.com/aiqx/core-service/internal/transport/http"
	"github.com/aiqx/core-service/internal/userdir"
	"github.com/aiqx/core-service/internal/workflow"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	useCaseRepo := repository.NewUseCaseRepository(pool, logger)
	plantRepo := repository.NewPlantRepository(pool, logger)

	engine := workflow.New(workflow.Deps{
		Store: useCaseRepo,
		Notifier: notify.NewMailer(notify.Config{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			SenderName:    cfg.SMTPSenderName,
			SenderAddress: cfg.SMTPSenderAddress,
		}, logger),
		FileLocker:           fileservice.NewClient(cfg.FileServiceURL, cfg.InternalToken, logger),
		Users:                userdir.NewClient(cfg.UserServiceURL, cfg.InternalToken, logger),
		Logger:               logger,
		ReviewTeamRecipients: cfg.ReviewTeamRecipients,
		DetailURL:            cfg.FrontendUseCaseDetailURL,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Service:       engine,
		Plants:        plantRepo,
		Logger:        logger,
		InternalToken: cfg.InternalToken,
		Health:        postgres.NewSchemaHealthChecker(pool),
		Version:       Version,
		Commit:        Commit,
		BuildDate:     BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
