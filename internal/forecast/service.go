// Package forecast runs one batch: load both datasets, fit the transform on
// Train, fit the models, score Predict and hand back one forecast per
// candidate offering.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"enrollment-forecast/internal/domain"
	"enrollment-forecast/internal/ml/encoding"
	"enrollment-forecast/internal/ml/features"
	"enrollment-forecast/internal/ml/scoring"
	"enrollment-forecast/internal/ml/training"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Loader interface {
	LoadTrain(ctx context.Context, period *string) ([]domain.TrainOffering, error)
	LoadPredict(ctx context.Context, period *string) ([]domain.PredictOffering, error)
}

type Trainer interface {
	Fit(ctx context.Context, t *encoding.Transform, rows []features.TrainRow) (*training.Models, error)
}

// ArtifactStore persists fitted artifacts by name. Load reports
// domain.ErrArtifactNotFound for unknown names.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

type Config struct {
	Period   *string
	Policy   scoring.Policy
	Rule     scoring.Rule
	HashBits int
	// TransformReuse restores a stored transform instead of fitting a new one.
	TransformReuse bool
}

type Service struct {
	loader  Loader
	trainer Trainer
	store   ArtifactStore
	tracer  trace.Tracer
	log     zerolog.Logger
	cfg     Config
}

type Result struct {
	Forecasts   []domain.Forecast
	TrainRows   int
	PredictRows int
}

// NewService wires the pipeline. A nil store disables artifact persistence.
func NewService(loader Loader, trainer Trainer, store ArtifactStore, tracer trace.Tracer, log zerolog.Logger, cfg Config) *Service {
	if cfg.Policy == "" {
		cfg.Policy = scoring.PolicyThreshold
	}
	if cfg.Rule == (scoring.Rule{}) {
		cfg.Rule = scoring.DefaultRule()
	}
	return &Service{
		loader:  loader,
		trainer: trainer,
		store:   store,
		tracer:  tracer,
		log:     log.With().Str("component", "forecast").Logger(),
		cfg:     cfg,
	}
}

func (s *Service) Run(ctx context.Context) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "forecast.run")
	defer span.End()

	if err := s.cfg.Rule.Validate(); err != nil {
		return nil, err
	}

	trainRaw, err := s.loader.LoadTrain(ctx, s.cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("load train: %w", err)
	}
	predictRaw, err := s.loader.LoadPredict(ctx, s.cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("load predict: %w", err)
	}
	if len(trainRaw) == 0 {
		s.log.Warn().Str("dataset", "train").Msg("dataset is empty")
	}
	if len(predictRaw) == 0 {
		s.log.Warn().Str("dataset", "predict").Msg("dataset is empty")
	}

	schema := features.DefaultSchema()
	trainRows := features.FromTrainAll(trainRaw)
	predictRows := features.FromPredictAll(predictRaw)
	if err := features.CheckParity(schema, trainRows, predictRows); err != nil {
		return nil, err
	}

	result := &Result{TrainRows: len(trainRows), PredictRows: len(predictRows)}
	span.SetAttributes(attribute.Int("train_rows", result.TrainRows), attribute.Int("predict_rows", result.PredictRows))
	if len(trainRows) == 0 {
		s.log.Warn().Msg("no train rows, nothing to fit")
		return result, nil
	}

	tf, err := s.transform(ctx, schema, trainRows)
	if err != nil {
		return nil, err
	}

	models, err := s.trainer.Fit(ctx, tf, trainRows)
	if err != nil {
		return nil, err
	}
	if err := s.saveModels(ctx, models); err != nil {
		return nil, err
	}
	if len(predictRows) == 0 {
		return result, nil
	}

	var classifier scoring.Classifier
	if s.cfg.Policy == scoring.PolicyClassifier {
		if models.Classifier == nil {
			return nil, errors.New("classifier policy selected but no classifier was fitted")
		}
		classifier = models.Classifier
	}

	_, applySpan := s.tracer.Start(ctx, "encoding.apply")
	samples, err := tf.Apply(predictRows)
	applySpan.End()
	if err != nil {
		return nil, err
	}

	_, scoreSpan := s.tracer.Start(ctx, "scoring.score")
	decisions := scoring.NewScorer(s.cfg.Rule, models.Regressor, classifier).Score(samples)
	scoreSpan.End()

	result.Forecasts = join(s.log, predictRows, decisions)
	opened := 0
	for _, f := range result.Forecasts {
		opened += f.Open
	}
	s.log.Info().
		Int("forecasts", len(result.Forecasts)).
		Int("opened", opened).
		Str("policy", string(s.cfg.Policy)).
		Msg("scoring complete")
	return result, nil
}

// transform fits on Train, or restores a stored snapshot when reuse is on.
func (s *Service) transform(ctx context.Context, schema features.Schema, rows []features.TrainRow) (*encoding.Transform, error) {
	ctx, span := s.tracer.Start(ctx, "encoding.fit")
	defer span.End()

	name := artifactName("transform", s.cfg.Period)
	if s.cfg.TransformReuse && s.store != nil {
		data, err := s.store.Load(ctx, name)
		switch {
		case err == nil:
			tf, err := encoding.UnmarshalBinary(data)
			if err != nil {
				return nil, fmt.Errorf("restore transform %s: %w", name, err)
			}
			if err := tf.CheckSchema(schema); err != nil {
				return nil, err
			}
			span.SetAttributes(attribute.Bool("reused", true))
			s.log.Info().Str("artifact", name).Msg("reusing stored transform")
			return tf, nil
		case errors.Is(err, domain.ErrArtifactNotFound):
			s.log.Info().Str("artifact", name).Msg("no stored transform, fitting")
		default:
			return nil, err
		}
	}

	tf, err := encoding.Fit(schema, rows, encoding.Options{HashBits: s.cfg.HashBits})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("width", tf.Width()).Int("hash_bits", tf.HashBits()).Msg("transform fitted")
	if err := s.save(ctx, name, tf.MarshalBinary); err != nil {
		return nil, err
	}
	return tf, nil
}

func (s *Service) saveModels(ctx context.Context, models *training.Models) error {
	if err := s.save(ctx, artifactName("regressor", s.cfg.Period), models.Regressor.MarshalBinary); err != nil {
		return err
	}
	if models.Classifier == nil {
		return nil
	}
	return s.save(ctx, artifactName("classifier", s.cfg.Period), models.Classifier.MarshalBinary)
}

func (s *Service) save(ctx context.Context, name string, marshal func() ([]byte, error)) error {
	if s.store == nil {
		return nil
	}
	data, err := marshal()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := s.store.Save(ctx, name, data); err != nil {
		return err
	}
	s.log.Debug().Str("artifact", name).Int("bytes", len(data)).Msg("artifact saved")
	return nil
}

// join pairs rows with decisions by position. Extra entries on either side
// are dropped and logged.
func join(log zerolog.Logger, rows []features.Row, decisions []scoring.Decision) []domain.Forecast {
	n := min(len(rows), len(decisions))
	if len(rows) != len(decisions) {
		log.Warn().
			Int("rows", len(rows)).
			Int("decisions", len(decisions)).
			Int("emitted", n).
			Msg("row and decision counts differ, truncating output")
	}
	out := make([]domain.Forecast, n)
	for i := 0; i < n; i++ {
		d := decisions[i]
		out[i] = domain.Forecast{
			Key:         rows[i].Key,
			Enrollment:  d.Enrollment,
			Open:        d.Open,
			Probability: d.Probability,
		}
	}
	return out
}

func artifactName(kind string, period *string) string {
	if period == nil || *period == "" {
		return kind + "-all"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, *period)
	return kind + "-" + safe
}
