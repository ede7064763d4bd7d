package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_stripe_webhook_events_external_event_id"}

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_stripe_webhook_events_external_event_id"))
	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.False(t, IsUniqueViolation(pgErr, "ux_users_email"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey, ""))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: stripe_webhook_events.external_event_id"), "ux_stripe_webhook_events_external_event_id"))
	assert.False(t, IsUniqueViolation(errors.New("connection refused"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}
