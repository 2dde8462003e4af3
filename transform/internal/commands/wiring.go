package commands

import (
	"context"

	"github.com/riliasov/chilekids-etl-pipeline/common/logging"
	"github.com/riliasov/chilekids-etl-pipeline/common/messaging/nats"
	"github.com/riliasov/chilekids-etl-pipeline/common/runstats"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/coerce"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/config"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/normalizer"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/pipeline"
	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/repository"
)

func repositoryOptions(c *config.Config) repository.Options {
	return repository.Options{
		Type:           c.Database.Type,
		URL:            c.Database.PostgresURL(),
		Path:           c.Database.SQLite.Path,
		MinConns:       c.Database.MinConns,
		MaxConns:       c.Database.MaxConns,
		AcquireTimeout: c.Database.AcquireTimeout,
	}
}

func openStore(ctx context.Context) (repository.Store, error) {
	return repository.Open(ctx, repositoryOptions(cfg))
}

func newNormalizer(c *config.Config) *normalizer.Normalizer {
	return normalizer.New(coerce.Policy{DecimalCommaMaxFraction: c.Pipeline.DecimalCommaMaxFraction}, logger)
}

func pipelineConfig(c *config.Config) pipeline.Config {
	return pipeline.Config{
		BatchSize:          c.Pipeline.BatchSize,
		TestLimit:          c.Pipeline.TestLimit,
		MaxWorkers:         c.Pipeline.MaxWorkers,
		ErrorRateThreshold: c.Pipeline.ErrorRateThreshold,
		MetricsPushURL:     c.Metrics.PushURL,
		MetricsJob:         c.Metrics.Job,
	}
}

// connectNATS returns nil when the bus is disabled or unreachable; the
// caller continues without events.
func connectNATS(c *config.Config) *nats.Client {
	if !c.NATS.Enabled {
		return nil
	}
	natsCfg := nats.DefaultConfig()
	natsCfg.URL = c.NATS.URL
	natsCfg.MaxReconnects = c.NATS.MaxReconnects
	natsCfg.ReconnectWait = c.NATS.ReconnectWait

	client, err := nats.NewClient(natsCfg, logger.Logger)
	if err != nil {
		logger.Warn("failed to connect to NATS (continuing without events)",
			"url", c.NATS.URL,
			logging.Error(err),
		)
		return nil
	}
	return client
}

// connectRunStats returns nil when run stats are disabled or Redis is
// unreachable.
func connectRunStats(c *config.Config) *runstats.Client {
	if !c.Redis.Enabled {
		return nil
	}
	client, err := runstats.NewClient(c.Redis.URL)
	if err != nil {
		logger.Warn("failed to connect to Redis (continuing without run stats)", logging.Error(err))
		return nil
	}
	return client
}
