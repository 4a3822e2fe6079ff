package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"enrollment-forecast/internal/cache"
	"enrollment-forecast/internal/config"
	"enrollment-forecast/internal/forecast"
	"enrollment-forecast/internal/ml/models/ridge"
	"enrollment-forecast/internal/ml/scoring"
	"enrollment-forecast/internal/ml/training"
	"enrollment-forecast/internal/offering"
	"enrollment-forecast/internal/report"
	"enrollment-forecast/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	newLoaderFunc  = func(cfg *config.Config, tracer trace.Tracer, log zerolog.Logger) forecast.Loader {
		dial := offering.PostgresDialer(cfg.DatabaseURL, cfg.QueryTimeout())
		return offering.NewRepository(dial, tracer, log, offering.Config{
			TrainRelations:   cfg.TrainRelations,
			PredictRelations: cfg.PredictRelations,
			IncludeOpened:    cfg.Policy() == scoring.PolicyClassifier,
			QueryTimeout:     cfg.QueryTimeout(),
		})
	}
	newArtifactStoreFunc = newArtifactStore
	writeCSVFunc         = report.WriteCSV
	exitFunc             = os.Exit
)

func main() {
	_ = loadEnvFunc()
	logger := newLogger(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("forecast failed")
		stop()
		exitFunc(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", tracing.ServiceName).Logger()
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := loadConfigFunc()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("shutdown tracer provider")
		}
	}()

	store, closeStore, err := newArtifactStoreFunc(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	policy := cfg.Policy()
	ridgeOpts := ridge.DefaultTrainOptions()
	ridgeOpts.Lambda = cfg.RidgeLambda
	trainer := training.NewService(tracer, logger, training.Config{
		FitClassifier: policy == scoring.PolicyClassifier,
		Classifier:    cfg.Classifier,
		Ridge:         ridgeOpts,
	})

	svc := forecast.NewService(newLoaderFunc(cfg, tracer, logger), trainer, store, tracer, logger, forecast.Config{
		Period:         cfg.PeriodFilter(),
		Policy:         policy,
		Rule:           cfg.Rule(),
		HashBits:       cfg.HashBits,
		TransformReuse: cfg.TransformReuse,
	})

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	out := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	if err := writeCSVFunc(out, result.Forecasts); err != nil {
		return err
	}
	logger.Info().
		Str("path", out).
		Int("rows", len(result.Forecasts)).
		Int("train_rows", result.TrainRows).
		Msg("forecast written")
	return nil
}

// newArtifactStore prefers Redis when configured and falls back to files
// under the output directory. A nil store disables persistence.
func newArtifactStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (forecast.ArtifactStore, func(), error) {
	noop := func() {}
	if !cfg.ArtifactsEnabled {
		return nil, noop, nil
	}
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close redis client")
			}
		}
		return cache.NewSnapshotStore(client, cfg.ArtifactTTL()), closeFn, nil
	}
	return report.NewFileStore(filepath.Join(cfg.OutputDir, "artifacts")), noop, nil
}
