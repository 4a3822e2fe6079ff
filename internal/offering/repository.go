package offering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"enrollment-forecast/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Conn is the part of *pgx.Conn the repository needs.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

// Dialer opens one connection per load call.
type Dialer func(ctx context.Context) (Conn, error)

// PostgresDialer dials dsn with pgx.
func PostgresDialer(dsn string, connectTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Conn, error) {
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		if connectTimeout > 0 {
			cfg.ConnectTimeout = connectTimeout
		}
		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Config struct {
	// Relations are tried in order; a relation is skipped only when Postgres
	// reports it does not exist.
	TrainRelations   []string
	PredictRelations []string
	// IncludeOpened selects the explicit opened outcome from Train relations.
	IncludeOpened bool
	QueryTimeout  time.Duration
}

type Repository struct {
	dial   Dialer
	tracer trace.Tracer
	log    zerolog.Logger
	cfg    Config
}

const featureColumns = `
    CAST(per_codigo AS text), CAST(mod_codigo AS text), CAST(cam_codigo AS text),
    CAST(sec_codigo AS text), CAST(doc_codigo AS text), CAST(ofe_modalidad_programa AS text),
    CAST(ofe_modulo AS double precision), CAST(ofe_semestre AS double precision),
    CAST(ofe_anio AS double precision), CAST(ofe_nivel AS double precision),
    CAST(ofe_presencialidad_obligatoria AS double precision), CAST(ofe_duracion_clase AS double precision),
    CAST(ofe_es_core AS double precision), CAST(ofe_dias_habiles AS double precision),
    CAST(ofe_hora_min AS double precision), CAST(pre_solicitudes AS double precision)`

const periodFilter = `
WHERE ($1::text IS NULL OR CAST(per_codigo AS text) = $1)
ORDER BY per_codigo, mod_codigo, cam_codigo, sec_codigo, doc_codigo`

func NewRepository(dial Dialer, tracer trace.Tracer, log zerolog.Logger, cfg Config) *Repository {
	return &Repository{
		dial:   dial,
		tracer: tracer,
		log:    log.With().Str("component", "offering-repo").Logger(),
		cfg:    cfg,
	}
}

// LoadTrain returns historical offerings. A nil period returns every period.
func (r *Repository) LoadTrain(ctx context.Context, period *string) ([]domain.TrainOffering, error) {
	ctx, span := r.tracer.Start(ctx, "offering-repo.load-train")
	defer span.End()

	columns := featureColumns + `,
    CAST(ofe_matriculados AS bigint)`
	if r.cfg.IncludeOpened {
		columns += `,
    CAST(ofe_abierta AS integer)`
	}

	var out []domain.TrainOffering
	relation, err := r.load(ctx, "load-train", r.cfg.TrainRelations, columns, period, func(rows pgx.Rows) error {
		for rows.Next() {
			var o domain.TrainOffering
			var enrollment, opened pgtype.Int8
			dest := offeringDest()
			dest = append(dest, &enrollment)
			if r.cfg.IncludeOpened {
				dest = append(dest, &opened)
			}
			if err := rows.Scan(dest...); err != nil {
				return err
			}
			assignOffering(&o.Offering, dest)
			o.Enrollment = int8Ptr(enrollment)
			o.Opened = int8Ptr(opened)
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("relation", relation), attribute.Int("rows", len(out)))
	return out, nil
}

// LoadPredict returns candidate offerings. A nil period returns every period.
func (r *Repository) LoadPredict(ctx context.Context, period *string) ([]domain.PredictOffering, error) {
	ctx, span := r.tracer.Start(ctx, "offering-repo.load-predict")
	defer span.End()

	var out []domain.PredictOffering
	relation, err := r.load(ctx, "load-predict", r.cfg.PredictRelations, featureColumns, period, func(rows pgx.Rows) error {
		for rows.Next() {
			var o domain.PredictOffering
			dest := offeringDest()
			if err := rows.Scan(dest...); err != nil {
				return err
			}
			assignOffering(&o.Offering, dest)
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("relation", relation), attribute.Int("rows", len(out)))
	return out, nil
}

// load dials once, walks the relation list and releases the connection before
// returning. It reports which relation served the rows.
func (r *Repository) load(ctx context.Context, op string, relations []string, columns string, period *string, scan func(pgx.Rows) error) (string, error) {
	if len(relations) == 0 {
		return "", &DataSourceError{Op: op, Err: ErrNoRelation}
	}
	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	conn, err := r.dial(ctx)
	if err != nil {
		return "", &DataSourceError{Op: "connect", Err: err}
	}
	defer func() {
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn().Err(err).Msg("close connection")
		}
	}()

	var lastErr error
	for _, relation := range relations {
		query := "SELECT" + columns + "\nFROM " + quoteRelation(relation) + periodFilter
		err := queryRelation(ctx, conn, query, period, scan)
		if err == nil {
			return relation, nil
		}
		if !isUndefinedRelation(err) {
			return "", &DataSourceError{Op: op, Relation: relation, Err: err}
		}
		r.log.Warn().Str("relation", relation).Msg("relation not found, trying next source")
		lastErr = err
	}
	return "", &DataSourceError{Op: op, Relation: strings.Join(relations, ","), Err: fmt.Errorf("no relation available: %w", lastErr)}
}

func queryRelation(ctx context.Context, conn Conn, query string, period *string, scan func(pgx.Rows) error) error {
	rows, err := conn.Query(ctx, query, period)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scan(rows)
}

func quoteRelation(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func offeringDest() []any {
	dest := make([]any, 0, 18)
	for i := 0; i < 6; i++ {
		dest = append(dest, &pgtype.Text{})
	}
	for i := 0; i < 10; i++ {
		dest = append(dest, &pgtype.Float8{})
	}
	return dest
}

func assignOffering(o *domain.Offering, dest []any) {
	text := func(i int) *string {
		v := dest[i].(*pgtype.Text)
		if !v.Valid {
			return nil
		}
		s := v.String
		return &s
	}
	num := func(i int) *float64 {
		v := dest[6+i].(*pgtype.Float8)
		if !v.Valid {
			return nil
		}
		f := v.Float64
		return &f
	}
	o.Period = text(0)
	o.Module = text(1)
	o.Campus = text(2)
	o.Section = text(3)
	o.Instructor = text(4)
	o.ModalityProgram = text(5)
	o.ModuleNumber = num(0)
	o.Semester = num(1)
	o.Year = num(2)
	o.Level = num(3)
	o.MandatoryAttendance = num(4)
	o.ClassDuration = num(5)
	o.IsCore = num(6)
	o.BusinessDays = num(7)
	o.MinimumHour = num(8)
	o.Requests = num(9)
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
