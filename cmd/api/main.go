package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"jobtracker/internal/config"
	"jobtracker/internal/handler"
	"jobtracker/internal/httpserver"
	"jobtracker/internal/repository"
	"jobtracker/internal/service"
	"jobtracker/internal/service/auth"
	"jobtracker/internal/service/ingest"
	"jobtracker/internal/task"
	"jobtracker/pkg/db"
	"jobtracker/pkg/logger"
	"jobtracker/pkg/mq"
	"jobtracker/pkg/outbox"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	// DB
	dbConn, err := db.NewConnection(cfg.DB, db.DefaultPoolOptions(), log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// MQ publisher (outbox dispatcher only)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn, log)
	taskRepo := task.NewRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	taskService := service.NewTaskService(dbConn, taskRepo, outboxRepo, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Start(ctx)

	handlers := httpserver.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Tasks:  handler.NewTaskHandler(taskService, log),
		Emails: handler.NewEmailQueryHandler(emailRepo),
	}
	if cfg.Webhook.Token != "" {
		ingestService := ingest.NewService(userRepo, ingest.NewOutboxWriter(dbConn, outboxRepo), log)
		handlers.Webhook = handler.NewWebhookHandler(ingestService, cfg.Webhook.Token, log)
		log.Info("Email webhook enabled")
	}
	router := httpserver.NewRouter(handlers, cfg.JWT.Secret, dbConn, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("api shutdown complete")
}
