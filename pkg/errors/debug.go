package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: the message, its code, every link of
// the wrap chain and, when a Postgres error is inside, the server's diagnostics.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	for k, v := range postgresFields(err) {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// postgresFields understands both drivers the service can sit on: pgx via gorm and lib/pq
// via goose migrations.
func postgresFields(err error) map[string]string {
	if pgErr := new(pgconn.PgError); errors.As(err, &pgErr) {
		return map[string]string{
			"pg_code":       pgErr.Code,
			"pg_message":    pgErr.Message,
			"pg_detail":     pgErr.Detail,
			"pg_table":      pgErr.TableName,
			"pg_column":     pgErr.ColumnName,
			"pg_constraint": pgErr.ConstraintName,
		}
	}
	if pqErr := new(pq.Error); errors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_message":    pqErr.Message,
			"pg_detail":     pqErr.Detail,
			"pg_table":      pqErr.Table,
			"pg_column":     pqErr.Column,
			"pg_constraint": pqErr.Constraint,
		}
	}
	return nil
}
