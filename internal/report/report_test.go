package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"enrollment-forecast/internal/domain"
)

func TestWriteCSVFormatsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "pred.csv")
	forecasts := []domain.Forecast{{
		Key:         domain.OfferingKey{Period: "2024-1", Module: "M1", Campus: "C1", Section: "S1", Instructor: "D1"},
		Enrollment:  14.996,
		Open:        1,
		Probability: 0.6457,
	}}

	if err := WriteCSV(path, forecasts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "per_codigo,mod_codigo,cam_codigo,sec_codigo,doc_codigo,matric_pred,abrir_pred,prob\n" +
		"2024-1,M1,C1,S1,D1,15.00,1,0.646\n"
	if string(data) != want {
		t.Fatalf("unexpected csv:\n%s", data)
	}
}

func TestWriteCSVHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pred.csv")
	if err := WriteCSV(path, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strings.Join(Header, ",") {
		t.Fatalf("expected header only, got %q", data)
	}
}

func TestWriteCSVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pred.csv")
	if err := WriteCSV(path, nil); err != nil {
		t.Fatal(err)
	}
	if err := WriteCSV(path, nil); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, got %d entries", len(entries))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "artifacts"))
	ctx := context.Background()

	if _, err := store.Load(ctx, "transform-all"); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if err := store.Save(ctx, "transform-all", []byte(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "transform-all")
	if err != nil || string(got) != `{}` {
		t.Fatalf("load: %q %v", got, err)
	}
	if err := store.Save(ctx, "../escape", nil); err == nil {
		t.Fatal("expected invalid name error")
	}
}
