package db

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateConnectionClass      = "08"
)

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, the violated constraint must match it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != sqlStateUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != sqlStateUniqueViolation {
			return false
		}
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	// sqlite and wrapped driver errors only expose text.
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName == "" {
		return true
	}
	if strings.Contains(msg, constraintName) {
		return true
	}
	// sqlite names the columns instead of the index
	columns, ok := sqliteUniqueColumns[constraintName]
	return ok && strings.Contains(msg, "UNIQUE constraint failed: "+columns)
}

var sqliteUniqueColumns = map[string]string{
	"ux_prescription_quotes_prescription_pharmacy": "prescription_quotes.prescription_id, prescription_quotes.pharmacy_id",
	"ux_orders_quote_id":                           "orders.quote_id",
	"ux_orders_customer_idempotency_key":           "orders.customer_id, orders.idempotency_key",
	"ux_outbox_events_event_aggregate":             "outbox_events.event_type, outbox_events.aggregate_type, outbox_events.aggregate_id",
	"ux_outbox_dlq_event_id":                       "outbox_dlq.event_id",
}

// IsTransient reports whether a failed transaction may succeed when replayed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientState(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isTransientState(string(pqErr.Code))
	}
	return pgconn.SafeToRetry(err)
}

func isTransientState(code string) bool {
	switch code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	}
	return strings.HasPrefix(code, sqlStateConnectionClass)
}
