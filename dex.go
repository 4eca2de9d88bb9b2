// Package dex wires the exchange core from configuration: logger, metrics
// registry, kafka event sink, optional postgres journal and the engine
// itself. Front ends (whatever transport drives the engine) embed Core.
package dex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NikolayPIvanov/DEX/internal/custody"
	"github.com/NikolayPIvanov/DEX/internal/engine"
	"github.com/NikolayPIvanov/DEX/internal/fee"
	"github.com/NikolayPIvanov/DEX/internal/storage"
	"github.com/NikolayPIvanov/DEX/libs/config"
	"github.com/NikolayPIvanov/DEX/libs/kafka"
	"github.com/NikolayPIvanov/DEX/libs/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type Core struct {
	Engine   *engine.Engine
	Registry *prometheus.Registry
	Logger   *slog.Logger

	publisher kafka.Publisher
	pool      *pgxpool.Pool
}

// New builds a Core from cfg. The caller supplies the custody transferer:
// an in-process custody.Bank for single-process deployments and tests, or a
// client for whatever remote custody service holds the actual tokens.
func New(ctx context.Context, cfg *config.AppConfig, transferer custody.Transferer) (*Core, error) {
	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Service: cfg.ServiceName,
		Env:     cfg.Env,
	}, nil)
	registry := prometheus.NewRegistry()

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafka.NewProducerMetrics(registry))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	var publisher kafka.Publisher = producer
	if cfg.Kafka.DLQTopic != "" {
		publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.DLQTopic, logger)
	}

	feeAccount, err := uuid.Parse(cfg.Fee.Account)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("fee.account: %w", err)
	}
	policy, err := fee.NewPolicy(feeAccount, cfg.Fee.Percent)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	var journal engine.Journal
	var pool *pgxpool.Pool
	if cfg.Journal.Enabled {
		pool, err = pgxpool.New(ctx, cfg.Journal.DSN)
		if err != nil {
			_ = publisher.Close()
			return nil, fmt.Errorf("journal pool: %w", err)
		}
		store := storage.New(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			_ = publisher.Close()
			return nil, err
		}
		journal = store
	}

	eng, err := engine.New(transferer, policy, publisher, cfg.Kafka.EventsTopic, journal, logger, engine.NewMetrics(registry))
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		_ = publisher.Close()
		return nil, err
	}

	return &Core{
		Engine:    eng,
		Registry:  registry,
		Logger:    logger,
		publisher: publisher,
		pool:      pool,
	}, nil
}

func (c *Core) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.publisher != nil {
		return c.publisher.Close()
	}
	return nil
}
