// Package bootstrap provides dependency initialization for Veo Studio.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/maauso/veo-studio/internal/config"
	"github.com/maauso/veo-studio/internal/credential"
	"github.com/maauso/veo-studio/internal/generation"
	"github.com/maauso/veo-studio/internal/generator"
	"github.com/maauso/veo-studio/internal/handle"
	"github.com/maauso/veo-studio/internal/history"
	"github.com/maauso/veo-studio/internal/metrics"
	"github.com/maauso/veo-studio/internal/relay"
	"github.com/maauso/veo-studio/internal/session"
	"github.com/maauso/veo-studio/internal/veo"
)

const redisPingTimeout = 5 * time.Second

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Session  *session.Machine
	Handles  *handle.Manager
	Keys     *credential.KeyStore
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Metrics on a private registry, with the usual process collectors
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	deps.Registry = reg

	// Initialize history storage
	engine, err := initEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pointer, err := initPointer(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(engine, pointer, logger, history.WithMetrics(m))

	// Credentials and generator backend
	deps.Keys = credential.NewKeyStore(cfg.GeminiAPIKey)
	gen, err := initGenerator(cfg, deps.Keys, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	deps.Handles = handle.NewManager(cfg.BaseURL(),
		handle.WithLogger(logger),
		handle.WithMetrics(m),
	)
	orch := generation.NewOrchestrator(gen, logger, generation.WithMetrics(m))

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
	}
	// The relay authenticates with its own token, so only Veo needs a key.
	if cfg.Generator == config.GeneratorVeo {
		opts = append(opts, session.WithGate(deps.Keys))
	}
	deps.Session = session.NewMachine(store, deps.Handles, orch, opts...)

	return deps, nil
}

// initEngine creates the record engine based on configuration.
func initEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Engine, error) {
	if cfg.S3Enabled() {
		engine, err := history.NewS3Engine(ctx, history.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, history.WithEngineLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create S3 engine: %w", err)
		}
		logger.Info("S3 history storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return engine, nil
	}

	logger.Info("disk history storage configured",
		slog.String("dir", cfg.RecordsDir()),
	)
	return history.NewDiskEngine(cfg.RecordsDir(), history.WithEngineLogger(logger)), nil
}

// initPointer creates the active pointer based on configuration.
func initPointer(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (history.Pointer, error) {
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to Redis at %s: %w", cfg.RedisAddr, err)
		}
		deps.closers = append(deps.closers, client.Close)

		logger.Info("Redis active pointer configured",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return history.NewRedisPointer(client, ""), nil
	}

	logger.Info("file active pointer configured",
		slog.String("path", cfg.PointerPath()),
	)
	return history.NewFilePointer(cfg.PointerPath()), nil
}

// initGenerator creates the generation backend selected by GENERATOR.
func initGenerator(cfg *config.Config, keys *credential.KeyStore, logger *slog.Logger) (generator.Generator, error) {
	switch cfg.Generator {
	case config.GeneratorRelay:
		opts := []relay.ClientOption{relay.WithToken(cfg.RelayToken)}
		if cfg.RelayStatusURL != "" {
			opts = append(opts, relay.WithStatusURL(cfg.RelayStatusURL))
		}
		client, err := relay.NewClient(cfg.RelayQueueURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create relay client: %w", err)
		}
		logger.Info("relay generator configured",
			slog.String("queue_url", cfg.RelayQueueURL),
			slog.Duration("poll_interval", cfg.RelayPollInterval()),
		)
		return generator.NewPoller(generator.NewRelayAdapter(client),
			generator.WithPollInterval(cfg.RelayPollInterval()),
			generator.WithLogger(logger),
		), nil

	case config.GeneratorVeo:
		client := veo.NewClient(keys)
		logger.Info("Veo generator configured",
			slog.Bool("api_key_set", cfg.GeminiAPIKey != ""),
			slog.Duration("poll_interval", cfg.VeoPollInterval()),
		)
		return generator.NewPoller(generator.NewVeoAdapter(client),
			generator.WithPollInterval(cfg.VeoPollInterval()),
			generator.WithLogger(logger),
		), nil

	default:
		return nil, fmt.Errorf("%w: got %q", config.ErrUnknownGenerator, cfg.Generator)
	}
}
