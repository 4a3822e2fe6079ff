package offering

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// undefinedTable is the SQLSTATE Postgres reports for a missing relation.
const undefinedTable = "42P01"

var ErrNoRelation = errors.New("no source relation configured")

// DataSourceError wraps any failure to read offerings from the store.
type DataSourceError struct {
	Op       string
	Relation string
	Err      error
}

func (e *DataSourceError) Error() string {
	if e.Relation == "" {
		return fmt.Sprintf("data source %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("data source %s %s: %v", e.Op, e.Relation, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

func isUndefinedRelation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
