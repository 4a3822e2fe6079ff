package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"enrollment-forecast/internal/ml/encoding"
	"enrollment-forecast/internal/ml/scoring"
	"enrollment-forecast/internal/ml/training"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string

	Period         string   `env:"FORECAST_PERIOD"`
	OpenThreshold  float64  `env:"OPEN_THRESHOLD" envDefault:"12"`
	OpenSigma      float64  `env:"OPEN_SIGMA" envDefault:"5"`
	HashBits       int      `env:"HASH_BITS" envDefault:"15"`
	DecisionPolicy string   `env:"DECISION_POLICY" envDefault:"threshold"`
	Classifier     string   `env:"CLASSIFIER" envDefault:"logreg"`
	RidgeLambda    float64  `env:"RIDGE_LAMBDA" envDefault:"1e-3"`
	TrainRelations []string `env:"TRAIN_RELATIONS" envSeparator:"," envDefault:"ml.v_ofe_train_relaxed,ml.ofe_train"`
	// PredictRelations are tried in order, falling back only on a missing relation.
	PredictRelations []string `env:"PREDICT_RELATIONS" envSeparator:"," envDefault:"ml.v_ofe_predict_relaxed,ml.vw_features_plan"`
	QueryTimeoutSecs int      `env:"QUERY_TIMEOUT_SECS" envDefault:"60"`

	OutputDir  string `env:"OUTPUT_DIR" envDefault:"out"`
	OutputFile string `env:"OUTPUT_FILE" envDefault:"pred_ofertas_resultados.csv"`

	ArtifactsEnabled bool   `env:"ARTIFACTS_ENABLED" envDefault:"true"`
	TransformReuse   bool   `env:"TRANSFORM_REUSE" envDefault:"false"`
	RedisURL         string `env:"REDIS_URL"`
	ArtifactTTLHours int    `env:"ARTIFACT_TTL_HOURS" envDefault:"0"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// connectionsFile is the YAML layout of CONNECTIONS_FILE.
type connectionsFile struct {
	Connections map[string]string `yaml:"connections"`
}

var (
	readFile = os.ReadFile

	ErrNoDatabaseURL = errors.New("no database connection configured")
)

// Load parses the environment and validates the result. The database URL is
// resolved with ResolveDatabaseURL.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Period = strings.TrimSpace(cfg.Period)
	cfg.TrainRelations = trimAll(cfg.TrainRelations)
	cfg.PredictRelations = trimAll(cfg.PredictRelations)
	cfg.DecisionPolicy = strings.ToLower(strings.TrimSpace(cfg.DecisionPolicy))
	cfg.Classifier = strings.ToLower(strings.TrimSpace(cfg.Classifier))

	dsn, err := ResolveDatabaseURL()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = dsn

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Rule().Validate(); err != nil {
		return err
	}
	if c.HashBits < encoding.MinHashBits || c.HashBits > encoding.MaxHashBits {
		return fmt.Errorf("%w: %d", encoding.ErrInvalidHashBits, c.HashBits)
	}
	if _, err := scoring.ParsePolicy(c.DecisionPolicy); err != nil {
		return err
	}
	switch c.Classifier {
	case training.ClassifierLogReg, training.ClassifierXGBoost:
	default:
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}
	if len(c.TrainRelations) == 0 || len(c.PredictRelations) == 0 {
		return errors.New("train and predict relations must not be empty")
	}
	if c.QueryTimeoutSecs < 0 || c.ArtifactTTLHours < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.RidgeLambda < 0 {
		return fmt.Errorf("ridge lambda must not be negative, got %v", c.RidgeLambda)
	}
	if c.OutputFile == "" {
		return errors.New("output file must not be empty")
	}
	return nil
}

func (c *Config) Rule() scoring.Rule {
	return scoring.Rule{OpenThreshold: c.OpenThreshold, Sigma: c.OpenSigma}
}

func (c *Config) Policy() scoring.Policy {
	p, _ := scoring.ParsePolicy(c.DecisionPolicy)
	return p
}

// PeriodFilter is nil when every period is requested.
func (c *Config) PeriodFilter() *string {
	if c.Period == "" {
		return nil
	}
	p := c.Period
	return &p
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.ArtifactTTLHours) * time.Hour
}

// ResolveDatabaseURL picks the first configured source: DATABASE_URL_FILE,
// then CONNECTION_NAME in CONNECTIONS_FILE, then DATABASE_URL.
func ResolveDatabaseURL() (string, error) {
	if path := strings.TrimSpace(os.Getenv("DATABASE_URL_FILE")); path != "" {
		data, err := readFile(path)
		if err != nil {
			return "", fmt.Errorf("read DATABASE_URL_FILE: %w", err)
		}
		if dsn := strings.TrimSpace(string(data)); dsn != "" {
			return dsn, nil
		}
	}

	if name := strings.TrimSpace(os.Getenv("CONNECTION_NAME")); name != "" {
		path := strings.TrimSpace(os.Getenv("CONNECTIONS_FILE"))
		if path == "" {
			path = "connections.yaml"
		}
		dsn, err := namedConnection(path, name)
		if err != nil {
			return "", err
		}
		return dsn, nil
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		return dsn, nil
	}
	return "", ErrNoDatabaseURL
}

func namedConnection(path, name string) (string, error) {
	data, err := readFile(path)
	if err != nil {
		return "", fmt.Errorf("read connections file: %w", err)
	}
	var file connectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	dsn := strings.TrimSpace(file.Connections[name])
	if dsn == "" {
		return "", fmt.Errorf("connection %q not found in %s", name, path)
	}
	return dsn, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
