package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "jobtracker/contracts/mq"
	"jobtracker/internal/classifier"
	"jobtracker/internal/config"
	"jobtracker/internal/enrich"
	"jobtracker/internal/filter"
	"jobtracker/internal/llm"
	"jobtracker/internal/mailbox/imapbox"
	"jobtracker/internal/mqhandler"
	"jobtracker/internal/pipeline"
	"jobtracker/internal/render"
	"jobtracker/internal/repository"
	"jobtracker/internal/task"
	"jobtracker/pkg/db"
	"jobtracker/pkg/logger"
	"jobtracker/pkg/mq"
	redisclient "jobtracker/pkg/redis"
	"jobtracker/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mailbox_provider", cfg.Mailbox.Provider),
		zap.Int("concurrency", cfg.Pipeline.Concurrency),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, db.DefaultPoolOptions(), log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)

	// Repositories
	taskRepo := task.NewRepository(dbConn, log)
	emailRepo := repository.NewEmailRepository(dbConn, log)
	companyRepo := repository.NewCompanyRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	fpRepo := repository.NewFalsePositiveRepository(dbConn)

	// Rules
	rules, err := filter.NewSet(cfg.Filter.RulesPath, cfg.Filter.OverridePath)
	if err != nil {
		log.Fatal("Failed to load filter rules", zap.Error(err))
	}
	log.Info("Filter rules loaded", zap.String("query", rules.Query()))

	// Model, classifier, enrichment
	model := llm.NewClient(cfg.LLM, log)
	retrier := classifier.NewRetrier(classifier.RetryPolicy{
		Attempts:  cfg.Classifier.Retries,
		BaseDelay: cfg.Classifier.BaseDelay,
	}, classifier.RealSleeper, log)
	falsePositives := classifier.NewCachedFalsePositives(fpRepo, rdb, cfg.Reaper.FalsePositiveRetention, log)
	cls := classifier.NewClassifier(model, falsePositives, retrier, log)

	var searcher enrich.Searcher
	if cfg.Search.APIKey != "" {
		cs, err := enrich.NewCustomSearch(ctx, cfg.Search)
		if err != nil {
			log.Fatal("Failed to init search", zap.Error(err))
		}
		searcher = cs
	}
	renderer := render.NewHTTPRenderer(render.Options{
		Timeout:           cfg.Render.Timeout,
		RequestsPerSecond: cfg.Render.RequestsPerSecond,
		UserAgent:         cfg.Render.UserAgent,
	}, log)
	enricher := enrich.NewEnricher(model, retrier, searcher, renderer, log,
		enrich.WithMinTextLength(cfg.Render.MinTextLength))

	// Mailbox
	var opener pipeline.MailboxOpener
	switch cfg.Mailbox.Provider {
	case "imap":
		box := imapbox.NewProvider(cfg.Mailbox, log)
		defer box.Close()
		opener = pipeline.StaticOpener{Provider: box}
	default:
		opener = pipeline.NewGmailOpener(cfg.Gmail, userRepo)
	}

	scanner := pipeline.NewScanner(taskRepo, opener, rules, cls, enricher, emailRepo, companyRepo,
		pipeline.ScannerConfig{Concurrency: cfg.Pipeline.Concurrency, Enrich: cfg.Pipeline.Enrich}, log)
	scraper := pipeline.NewScraper(taskRepo, enricher, log)

	// DLQ publisher
	dlq, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlq.Close()

	scanHandler := mqhandler.NewScanRequestedHandler(scanner, deduper, retryCounter, cfg.Worker.MaxRetries, log)
	scrapeHandler := mqhandler.NewScrapeRequestedHandler(scraper, deduper, retryCounter, cfg.Worker.MaxRetries, log)
	forwardedHandler := mqhandler.NewEmailForwardedHandler(scanner, deduper, retryCounter, cfg.Worker.MaxRetries, log)

	consumers := []struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}{
		{"task.scan.requested.q", mqcontracts.RoutingKeyScanRequested, scanHandler.Handle},
		{"task.scrape.requested.q", mqcontracts.RoutingKeyScrapeRequested, scrapeHandler.Handle},
		{"email.forwarded.q", mqcontracts.RoutingKeyEmailForwarded, forwardedHandler.Handle},
	}

	var wg sync.WaitGroup
	for _, qc := range consumers {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, qc.queue, qc.routingKey, cfg.Worker.Prefetch, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", qc.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(qc.handle)
		consumer.SetDLQ(dlq)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer stopped", zap.String("queue", qc.queue), zap.Error(err))
				cancel()
			}
		}()
	}

	reaper := task.NewReaper(taskRepo, falsePositives, cfg.Reaper.Interval, cfg.Reaper.StaleAfter, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	log.Info("worker is fully initialized and running")

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down worker gracefully...")
	cancel()
	wg.Wait()
	log.Info("worker shutdown complete")
}
