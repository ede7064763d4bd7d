package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpSurfacesPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_stripe_webhook_events_external_event_id",
		TableName:      "stripe_webhook_events",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeDependency, fmt.Errorf("insert: %w", pgErr), "store event")

	d := Dump(err)
	assert.Equal(t, CodeDependency, d.Code)
	require.NotNil(t, d.PG)
	assert.Equal(t, "23505", d.PG.Code)
	assert.Equal(t, "ux_stripe_webhook_events_external_event_id", d.PG.Constraint)
	assert.Equal(t, "stripe_webhook_events", d.PG.Table)
	assert.Len(t, d.Chain, 3)
	assert.True(t, d.Transient)

	fields := d.Fields()
	assert.Equal(t, "23505", fields["pg_code"])
	assert.Equal(t, CodeDependency, fields["error_code"])
}

func TestDumpSurfacesPqFields(t *testing.T) {
	err := fmt.Errorf("claim: %w", &pq.Error{Code: "40001", Table: "stripe_webhook_events", Message: "could not serialize access"})

	d := Dump(err)
	require.NotNil(t, d.PG)
	assert.Equal(t, "40001", d.PG.Code)
	assert.Equal(t, "stripe_webhook_events", d.PG.Table)
	assert.Empty(t, d.Code)
	assert.True(t, d.Transient)
}

func TestDumpFieldsOmitPostgresWhenAbsent(t *testing.T) {
	fields := Dump(New(CodeNotFound, "missing")).Fields()
	assert.NotContains(t, fields, "pg_code")
	assert.Equal(t, "NOT_FOUND: missing", fields["error"])
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}

func TestDumpMarksSerializationFailureTransient(t *testing.T) {
	err := fmt.Errorf("claim: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, Dump(err).Transient)

	assert.False(t, Dump(New(CodeValidation, "bad")).Transient)
	assert.True(t, Dump(New(CodeDependency, "db down")).Transient)
}
