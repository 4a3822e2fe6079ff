package domain

// OfferingKey identifies one candidate course offering.
type OfferingKey struct {
	Period     string
	Module     string
	Campus     string
	Section    string
	Instructor string
}

// Offering is a raw offering row as read from the store. Any column may be NULL.
type Offering struct {
	Period          *string
	Module          *string
	Campus          *string
	Section         *string
	Instructor      *string
	ModalityProgram *string

	ModuleNumber        *float64
	Semester            *float64
	Year                *float64
	Level               *float64
	MandatoryAttendance *float64
	ClassDuration       *float64
	IsCore              *float64
	BusinessDays        *float64
	MinimumHour         *float64
	Requests            *float64
}

// TrainOffering is a historical offering with its observed outcome.
type TrainOffering struct {
	Offering
	Enrollment *int64
	// Opened is only populated when the source exposes an explicit outcome column.
	Opened *int64
}

// PredictOffering is a candidate offering. It never carries an outcome.
type PredictOffering struct {
	Offering
}

// Forecast is one emitted result row.
type Forecast struct {
	Key         OfferingKey
	Enrollment  float64
	Open        int
	Probability float64
}
