package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"enrollment-forecast/internal/ml/scoring"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "DATABASE_URL_FILE", "CONNECTIONS_FILE", "CONNECTION_NAME",
		"FORECAST_PERIOD", "OPEN_THRESHOLD", "OPEN_SIGMA", "HASH_BITS", "DECISION_POLICY",
		"CLASSIFIER", "TRAIN_RELATIONS", "PREDICT_RELATIONS", "QUERY_TIMEOUT_SECS",
		"RIDGE_LAMBDA", "OUTPUT_DIR", "OUTPUT_FILE", "REDIS_URL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenThreshold != 12 || cfg.OpenSigma != 5 || cfg.HashBits != 15 {
		t.Fatalf("unexpected decision defaults: %+v", cfg)
	}
	if cfg.Policy() != scoring.PolicyThreshold || cfg.Classifier != "logreg" {
		t.Fatalf("unexpected policy defaults: %+v", cfg)
	}
	if len(cfg.TrainRelations) != 2 || cfg.TrainRelations[0] != "ml.v_ofe_train_relaxed" {
		t.Fatalf("unexpected train relations: %v", cfg.TrainRelations)
	}
	if len(cfg.PredictRelations) != 2 || cfg.PredictRelations[1] != "ml.vw_features_plan" {
		t.Fatalf("unexpected predict relations: %v", cfg.PredictRelations)
	}
	if cfg.PeriodFilter() != nil {
		t.Fatal("empty period should select every period")
	}
	if cfg.OutputDir != "out" || cfg.OutputFile != "pred_ofertas_resultados.csv" {
		t.Fatalf("unexpected output defaults: %s/%s", cfg.OutputDir, cfg.OutputFile)
	}
	if !cfg.ArtifactsEnabled || cfg.TransformReuse {
		t.Fatalf("unexpected artifact defaults: %+v", cfg)
	}
	if cfg.QueryTimeout().Seconds() != 60 {
		t.Fatalf("unexpected query timeout: %v", cfg.QueryTimeout())
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("FORECAST_PERIOD", " 2024-1 ")
	t.Setenv("OPEN_THRESHOLD", "8")
	t.Setenv("DECISION_POLICY", "Classifier")
	t.Setenv("CLASSIFIER", "xgboost")
	t.Setenv("TRAIN_RELATIONS", "ml.ofe_train, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := cfg.PeriodFilter(); p == nil || *p != "2024-1" {
		t.Fatalf("unexpected period: %v", p)
	}
	if cfg.Rule().OpenThreshold != 8 || cfg.Policy() != scoring.PolicyClassifier {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.TrainRelations) != 1 || cfg.TrainRelations[0] != "ml.ofe_train" {
		t.Fatalf("unexpected train relations: %v", cfg.TrainRelations)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"sigma":      {"OPEN_SIGMA", "0"},
		"hash bits":  {"HASH_BITS", "40"},
		"policy":     {"DECISION_POLICY", "vote"},
		"classifier": {"CLASSIFIER", "forest"},
		"parse":      {"OPEN_THRESHOLD", "twelve"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://example")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestResolveDatabaseURLPriority(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	secret := filepath.Join(dir, "dsn")
	if err := os.WriteFile(secret, []byte("postgres://from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	conns := filepath.Join(dir, "connections.yaml")
	yaml := "connections:\n  reporting: postgres://from-yaml\n"
	if err := os.WriteFile(conns, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DATABASE_URL", "postgres://from-env")
	if got, _ := ResolveDatabaseURL(); got != "postgres://from-env" {
		t.Fatalf("expected env dsn, got %s", got)
	}

	t.Setenv("CONNECTIONS_FILE", conns)
	t.Setenv("CONNECTION_NAME", "reporting")
	if got, _ := ResolveDatabaseURL(); got != "postgres://from-yaml" {
		t.Fatalf("expected named dsn, got %s", got)
	}

	t.Setenv("DATABASE_URL_FILE", secret)
	if got, _ := ResolveDatabaseURL(); got != "postgres://from-file" {
		t.Fatalf("expected file dsn, got %s", got)
	}
}

func TestResolveDatabaseURLUnknownConnection(t *testing.T) {
	clearEnv(t)
	orig := readFile
	t.Cleanup(func() { readFile = orig })
	readFile = func(string) ([]byte, error) {
		return []byte("connections:\n  other: postgres://x\n"), nil
	}
	t.Setenv("CONNECTION_NAME", "missing")

	if _, err := ResolveDatabaseURL(); err == nil {
		t.Fatal("expected error for unknown connection")
	}
}

func TestResolveDatabaseURLMissing(t *testing.T) {
	clearEnv(t)
	if _, err := ResolveDatabaseURL(); !errors.Is(err, ErrNoDatabaseURL) {
		t.Fatalf("expected ErrNoDatabaseURL, got %v", err)
	}
}
