package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"post-digest/config"
	"post-digest/eventbus"
	"post-digest/internal/logger"
)

// Kafka 백엔드에서만 필요하다. 재시도 토픽에 쌓인 메시지를 지연 시간이 지나면 기본 토픽으로 되돌린다.
func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.InitFromEnv("LOG_LEVEL", cfg.Logging.Level)

	if cfg.Broker.Backend != "kafka" {
		logger.Log.Warnf("retry worker is only needed for the kafka backend (current: %s)", cfg.Broker.Backend)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kcfg := cfg.Broker.Kafka
	queues := []string{cfg.Queues.DCInside, cfg.Queues.Reddit}
	for _, q := range queues {
		if err := eventbus.EnsureTopics(kcfg.Brokers, eventbus.NewTopic(q), kcfg.Partitions); err != nil {
			logger.Log.Errorf("failed to ensure eventbus topics for %s: %v", q, err)
		}
	}

	broker, err := eventbus.NewKafkaBroker(kcfg)
	if err != nil {
		logger.Log.Errorf("failed to create kafka broker: %v", err)
		os.Exit(1)
	}
	defer broker.Close()

	groupID := kcfg.GroupID + "-retry-worker"
	logger.Log.Info("starting retry worker service...")

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		topic := eventbus.NewTopic(q)
		g.Go(func() error {
			topicGroupID := groupID + "-" + strings.ReplaceAll(topic.Base(), ".", "-")
			err := broker.StartRetryReinjector(gctx, topicGroupID, topic)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Errorf("retry reinjector error for %s: %v", topic.Base(), err)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Log.Errorf("retry worker stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Log.Info("retry worker service stopped")
}
