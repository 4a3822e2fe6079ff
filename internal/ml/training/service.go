package training

import (
	"context"
	"fmt"

	"enrollment-forecast/internal/ml/encoding"
	"enrollment-forecast/internal/ml/features"
	"enrollment-forecast/internal/ml/models/logreg"
	"enrollment-forecast/internal/ml/models/ridge"
	"enrollment-forecast/internal/ml/models/xgboost"
	"enrollment-forecast/internal/ml/sparse"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	ClassifierLogReg  = "logreg"
	ClassifierXGBoost = "xgboost"
)

// Classifier is a fitted binary model for the opened outcome.
type Classifier interface {
	PredictProb(sample sparse.Vector) float64
	MarshalBinary() ([]byte, error)
}

type Config struct {
	// FitClassifier enables the classifier path. The regressor is always fitted.
	FitClassifier bool
	Classifier    string
	Ridge         ridge.TrainOptions
	LogReg        logreg.TrainOptions
	XGBoost       xgboost.TrainOptions
}

type Service struct {
	tracer trace.Tracer
	log    zerolog.Logger
	cfg    Config
}

type Models struct {
	Regressor      *ridge.Model
	Classifier     Classifier
	ClassifierKey  string
	TrainRows      int
	ClassifierRows int
}

func NewService(tracer trace.Tracer, log zerolog.Logger, cfg Config) *Service {
	if cfg.Classifier == "" {
		cfg.Classifier = ClassifierLogReg
	}
	if cfg.Ridge == (ridge.TrainOptions{}) {
		cfg.Ridge = ridge.DefaultTrainOptions()
	}
	if cfg.LogReg == (logreg.TrainOptions{}) {
		cfg.LogReg = logreg.DefaultTrainOptions()
	}
	if cfg.XGBoost == (xgboost.TrainOptions{}) {
		cfg.XGBoost = xgboost.DefaultTrainOptions()
	}
	return &Service{
		tracer: tracer,
		log:    log.With().Str("component", "training").Logger(),
		cfg:    cfg,
	}
}

// Fit trains the regressor, and the classifier when enabled, on Train rows
// transformed by t.
func (s *Service) Fit(ctx context.Context, t *encoding.Transform, rows []features.TrainRow) (*Models, error) {
	_, span := s.tracer.Start(ctx, "training.fit")
	defer span.End()

	reg, err := AttachEnrollment(t, rows)
	if err != nil {
		return nil, err
	}
	regressor, err := ridge.Train(reg.X, reg.Y, reg.Width, s.cfg.Ridge)
	if err != nil {
		return nil, fmt.Errorf("train ridge: %w", err)
	}
	s.log.Info().
		Int("rows", len(reg.Y)).
		Int("width", reg.Width).
		Int("iterations", regressor.Iterations()).
		Msg("regressor fitted")

	models := &Models{Regressor: regressor, TrainRows: len(reg.Y)}
	if !s.cfg.FitClassifier {
		return models, nil
	}

	cls, skipped, err := AttachOpened(t, rows)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Msg("train rows without opened outcome left out of classifier")
	}

	switch s.cfg.Classifier {
	case ClassifierLogReg:
		m, err := logreg.Train(cls.X, cls.Y, cls.Width, s.cfg.LogReg)
		if err != nil {
			return nil, fmt.Errorf("train logreg: %w", err)
		}
		models.Classifier = m
	case ClassifierXGBoost:
		var names []string
		if cls.Width <= xgboost.MaxDenseWidth {
			names = t.FeatureNames()
		}
		m, err := xgboost.Train(cls.X, cls.Y, cls.Width, names, s.cfg.XGBoost)
		if err != nil {
			return nil, fmt.Errorf("train xgboost: %w", err)
		}
		models.Classifier = m
	default:
		return nil, fmt.Errorf("unknown classifier %q", s.cfg.Classifier)
	}
	models.ClassifierKey = s.cfg.Classifier
	models.ClassifierRows = len(cls.Y)
	s.log.Info().
		Str("classifier", s.cfg.Classifier).
		Int("rows", len(cls.Y)).
		Msg("classifier fitted")
	return models, nil
}
