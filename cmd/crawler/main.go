package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"post-digest/config"
	"post-digest/db"
	"post-digest/eventbus"
	"post-digest/feeder"
	"post-digest/internal/logger"
	"post-digest/repositories"
	"post-digest/services"
)

func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.InitFromEnv("LOG_LEVEL", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Init(ctx); err != nil {
		logger.Log.Errorf("failed to initialize postgres: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	broker, err := eventbus.New(cfg.Broker)
	if err != nil {
		logger.Log.Errorf("failed to create broker: %v", err)
		os.Exit(1)
	}
	defer broker.Close()

	for _, q := range []string{cfg.Queues.DCInside, cfg.Queues.Reddit} {
		if cfg.Broker.Backend == "kafka" {
			if err := eventbus.EnsureTopics(cfg.Broker.Kafka.Brokers, eventbus.NewTopic(q), cfg.Broker.Kafka.Partitions); err != nil {
				logger.Log.Errorf("failed to ensure kafka topics for %s: %v", q, err)
			}
		}
		if err := broker.EnsureQueue(ctx, q); err != nil {
			logger.Log.Errorf("failed to declare queue %s: %v", q, err)
			os.Exit(1)
		}
	}

	pool := db.Pool()
	svc := services.NewCrawlService(
		repositories.NewSourceRepository(pool),
		repositories.NewItemRepository(pool),
		services.NewPublisher(broker),
		cfg.Queues,
	)
	crawlers := feeder.Crawlers(cfg.Crawl, cfg.Worker.UserAgent)
	if len(crawlers) == 0 {
		logger.Log.Warn("no crawl targets enabled in config.yaml (key: crawl)")
		return
	}

	// 첫 실행은 즉시 1회 수행
	runOnce(ctx, svc, crawlers)

	interval := time.Duration(cfg.Crawl.IntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		logger.Log.Infof("crawler sleeping for %s", interval)
		select {
		case <-ctx.Done():
			logger.Log.Info("received shutdown signal, crawler stopped")
			return
		case <-ticker.C:
			runOnce(ctx, svc, crawlers)
		}
	}
}

// runOnce 는 소스마다 한 주기를 병렬로 실행한다. 한 소스의 실패는 다른 소스에 영향을 주지 않는다.
func runOnce(ctx context.Context, svc *services.CrawlService, crawlers []feeder.Crawler) {
	var g errgroup.Group
	g.SetLimit(4)
	for _, c := range crawlers {
		g.Go(func() error {
			report, err := svc.RunCycle(ctx, c)
			if err != nil {
				logger.ErrorWithFields("crawl cycle failed", logger.Fields{
					"source":   report.Source,
					"inserted": report.Inserted,
					"error":    err.Error(),
				})
				return fmt.Errorf("%s: %w", report.Source, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Log.Warnf("crawl run finished with errors: %v", err)
	}
}
