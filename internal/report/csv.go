// Package report writes forecast results and model artifacts to disk.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"enrollment-forecast/internal/domain"
)

var Header = []string{
	"per_codigo", "mod_codigo", "cam_codigo", "sec_codigo", "doc_codigo",
	"matric_pred", "abrir_pred", "prob",
}

// WriteCSV replaces path with the forecasts. The file is written next to its
// destination and renamed into place, so readers never see a partial file.
func WriteCSV(path string, forecasts []domain.Forecast) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(Header); err != nil {
			return err
		}
		for _, fc := range forecasts {
			if err := w.Write(record(fc)); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func record(fc domain.Forecast) []string {
	return []string{
		fc.Key.Period,
		fc.Key.Module,
		fc.Key.Campus,
		fc.Key.Section,
		fc.Key.Instructor,
		strconv.FormatFloat(fc.Enrollment, 'f', 2, 64),
		strconv.Itoa(fc.Open),
		strconv.FormatFloat(fc.Probability, 'f', 3, 64),
	}
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
