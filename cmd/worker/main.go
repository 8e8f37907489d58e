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

	"golang.org/x/sync/errgroup"

	"post-digest/config"
	"post-digest/db"
	"post-digest/eventbus"
	"post-digest/internal/logger"
	"post-digest/media"
	"post-digest/parser"
	"post-digest/renderer"
	"post-digest/repositories"
	"post-digest/services"
)

func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.InitFromEnv("LOG_LEVEL", cfg.Logging.Level)

	if err := run(cfg); err != nil {
		logger.Log.Errorf("worker stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Log.Info("worker service stopped")
}

func run(cfg config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	family := cfg.Worker.Family
	queue, err := cfg.Queues.ForFamily(family)
	if err != nil {
		return err
	}

	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize postgres: %w", err)
	}
	defer db.Close()
	pool := db.Pool()

	broker, err := eventbus.New(cfg.Broker)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}
	defer broker.Close()
	if err := prepareQueue(ctx, cfg.Broker, broker, queue); err != nil {
		return err
	}

	userAgent := cfg.Worker.UserAgent
	opts := parser.Options{UserAgent: userAgent}
	if cfg.Worker.RenderFallback {
		if r := renderer.New(cfg.Worker.ChromePath, userAgent); r.Available() {
			opts.Renderer = r
		} else {
			logger.Log.Warn("render fallback enabled but no chrome binary was found, continuing without it")
		}
	}
	fetcher, err := parser.New(family, opts)
	if err != nil {
		return err
	}

	engine, err := newSummaryEngine(ctx, cfg.Summary, repositories.NewCooldownRepository(pool))
	if err != nil {
		return err
	}

	items := repositories.NewItemRepository(pool)
	enrich := services.NewEnrichService(services.EnrichDeps{
		Items:      items,
		Sources:    repositories.NewSourceRepository(pool),
		Assets:     repositories.NewAssetRepository(pool),
		Comments:   repositories.NewCommentRepository(pool),
		Summaries:  repositories.NewSummaryRepository(pool),
		Fetchers:   map[string]parser.Fetcher{family: fetcher},
		Images:     media.NewDownloader(config.ResolvePath(cfg.Worker.AssetRoot), userAgent, nil),
		Summarizer: engine,
	}, cfg.Worker)
	consumer := services.NewConsumer(broker, queue, enrich, items, cfg.Worker)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.Port),
		Handler:           NewRouter(consumer, cfg.Worker.InvocationTimeout()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Infof("starting %s worker on %s (queue %s, models %v)", family, server.Addr, queue, engine.Models())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("received shutdown signal, shutting down worker service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.InvocationTimeout()+5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// prepareQueue 는 큐를 미리 선언한다. Kafka 는 재시도/DLQ 토픽까지 만든다.
func prepareQueue(ctx context.Context, cfg config.BrokerConfig, broker eventbus.Broker, queue string) error {
	if cfg.Backend == "kafka" {
		if err := eventbus.EnsureTopics(cfg.Kafka.Brokers, eventbus.NewTopic(queue), cfg.Kafka.Partitions); err != nil {
			logger.Log.Errorf("failed to ensure kafka topics for %s: %v", queue, err)
		}
	}
	if err := broker.EnsureQueue(ctx, queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return nil
}
