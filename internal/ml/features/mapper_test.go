package features

import (
	"errors"
	"math"
	"testing"

	"enrollment-forecast/internal/domain"
)

func TestFromPredictSubstitutesDefaults(t *testing.T) {
	period := "20240"
	row := FromPredict(domain.PredictOffering{Offering: domain.Offering{Period: &period}})

	if row.Categorical["per_codigo"] != "20240" {
		t.Fatalf("expected period to be copied, got %q", row.Categorical["per_codigo"])
	}
	for _, name := range DefaultSchema().Categorical[1:] {
		if row.Categorical[name] != Unknown {
			t.Fatalf("expected %s to default to %q, got %q", name, Unknown, row.Categorical[name])
		}
	}
	for _, name := range DefaultSchema().Numeric {
		v, ok := row.Numeric[name]
		if !ok || v != 0 {
			t.Fatalf("expected %s to default to 0, got %v (present=%v)", name, v, ok)
		}
	}
	if row.Key.Period != "20240" || row.Key.Instructor != Unknown {
		t.Fatalf("unexpected key %+v", row.Key)
	}
}

func TestFromPredictReplacesNaN(t *testing.T) {
	nan := math.NaN()
	row := FromPredict(domain.PredictOffering{Offering: domain.Offering{Level: &nan}})
	if row.Numeric["ofe_nivel"] != 0 {
		t.Fatalf("expected NaN to map to 0, got %v", row.Numeric["ofe_nivel"])
	}
}

func TestFromTrainDerivesLabels(t *testing.T) {
	enrolled := int64(17)
	opened := int64(1)
	requests := 30.0
	row := FromTrain(domain.TrainOffering{
		Offering:   domain.Offering{Requests: &requests},
		Enrollment: &enrolled,
		Opened:     &opened,
	})
	if row.Enrollment != 17 {
		t.Fatalf("expected enrollment 17, got %v", row.Enrollment)
	}
	if row.Opened == nil || !*row.Opened {
		t.Fatalf("expected opened=true, got %v", row.Opened)
	}
	if row.Numeric["pre_solicitudes"] != 30 {
		t.Fatalf("expected requests 30, got %v", row.Numeric["pre_solicitudes"])
	}

	bare := FromTrain(domain.TrainOffering{})
	if bare.Enrollment != 0 || bare.Opened != nil {
		t.Fatalf("expected zero enrollment and no opened label, got %+v", bare)
	}
}

func TestCheckParity(t *testing.T) {
	schema := DefaultSchema()
	train := FromTrainAll([]domain.TrainOffering{{}, {}})
	predict := FromPredictAll([]domain.PredictOffering{{}})
	if err := CheckParity(schema, train, predict); err != nil {
		t.Fatalf("unexpected parity error: %v", err)
	}

	trainCat, trainNum := columnsOf(train[0].Row)
	predCat, predNum := columnsOf(predict[0])
	if len(trainCat) != len(predCat) || len(trainNum) != len(predNum) {
		t.Fatalf("train and predict column sets differ")
	}

	predict[0].Numeric["ofe_extra"] = 1
	delete(predict[0].Categorical, "doc_codigo")
	err := CheckParity(schema, train, predict)
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if mismatch.Dataset != "predict" || mismatch.Row != 0 {
		t.Fatalf("unexpected mismatch location %+v", mismatch)
	}
	if len(mismatch.Missing) != 1 || mismatch.Missing[0] != "doc_codigo" {
		t.Fatalf("unexpected missing columns %v", mismatch.Missing)
	}
	if len(mismatch.Extra) != 1 || mismatch.Extra[0] != "ofe_extra" {
		t.Fatalf("unexpected extra columns %v", mismatch.Extra)
	}
}

func TestCompareSchemaDetectsOrder(t *testing.T) {
	want := DefaultSchema()
	got := DefaultSchema()
	got.Numeric[0], got.Numeric[1] = got.Numeric[1], got.Numeric[0]
	err := CompareSchema("transform", want, got)
	if err == nil {
		t.Fatal("expected order difference to be reported")
	}
	if CompareSchema("transform", want, DefaultSchema()) != nil {
		t.Fatal("expected identical schemas to compare equal")
	}
}

func columnsOf(r Row) ([]string, []string) {
	return keysOf(r.Categorical), keysOfFloat(r.Numeric)
}
