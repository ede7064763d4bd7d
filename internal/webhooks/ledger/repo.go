package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lazydrop/lazydrop-billing/pkg/db"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	"github.com/lazydrop/lazydrop-billing/pkg/pagination"
)

const externalEventIDConstraint = "ux_stripe_webhook_events_external_event_id"

// ErrClaimLost is returned when a status write finds the row no longer held
// by the caller's claim.
var ErrClaimLost = errors.New("webhook event claim lost")

// DueQuery selects rows a driver should pick up.
type DueQuery struct {
	Status      enums.WebhookEventStatus
	Now         time.Time
	MaxAttempts int
	Limit       int
}

// Outcome is the terminal or retry state written after a processing attempt.
type Outcome struct {
	Status      enums.WebhookEventStatus
	ProcessedAt *time.Time
	LastError   *string
	NextRetryAt *time.Time
}

// Repository persists the Stripe webhook ledger.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the ledger to a database handle.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Insert stores a new ledger row. It reports false without error when a row
// with the same external event id already exists.
func (r *Repository) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, externalEventIDConstraint) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByExternalID returns the row for the sender's event id, or nil.
func (r *Repository) FindByExternalID(ctx context.Context, externalEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("external_event_id = ?", externalEventID).
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// FindDue lists rows in q.Status whose next_retry_at has passed, oldest first.
func (r *Repository) FindDue(ctx context.Context, q DueQuery) ([]models.WebhookEvent, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("status = ?", q.Status).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", q.Now)
	if q.MaxAttempts > 0 {
		query = query.Where("attempt_count < ?", q.MaxAttempts)
	}

	var rows []models.WebhookEvent
	if err := query.
		Order("received_at ASC").
		Order("id ASC").
		Limit(q.Limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Claim moves a due row to PROCESSING and leases it until now+lease. Only
// rows whose next_retry_at has passed qualify, so among concurrent callers
// exactly one sees an affected row.
func (r *Repository) Claim(ctx context.Context, externalEventID string, now time.Time, lease time.Duration) (bool, error) {
	leaseUntil := now.Add(lease)
	res := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("external_event_id = ?", externalEventID).
		Where("status IN ?", enums.ClaimableWebhookEventStatuses()).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Updates(map[string]any{
			"status":        enums.WebhookEventStatusProcessing,
			"next_retry_at": leaseUntil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateOutcome records the result of a processing attempt. The write only
// lands while the row is still PROCESSING at expectedAttempts; otherwise
// ErrClaimLost is returned.
func (r *Repository) UpdateOutcome(ctx context.Context, externalEventID string, expectedAttempts int, outcome Outcome) error {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("external_event_id = ?", externalEventID).
		Where("status = ?", enums.WebhookEventStatusProcessing).
		Where("attempt_count = ?", expectedAttempts).
		Updates(map[string]any{
			"status":        outcome.Status,
			"attempt_count": expectedAttempts + 1,
			"processed_at":  outcome.ProcessedAt,
			"last_error":    outcome.LastError,
			"next_retry_at": outcome.NextRetryAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// ListDeadLetters returns FAILED rows with no retry scheduled, newest first,
// starting strictly after the given cursor.
func (r *Repository) ListDeadLetters(ctx context.Context, limit int, after *pagination.Cursor) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Where("status = ?", enums.WebhookEventStatusFailed).
		Where("next_retry_at IS NULL")
	if after != nil {
		q = q.Where("(received_at < ?) OR (received_at = ? AND id < ?)", after.At, after.At, after.ID)
	}
	var rows []models.WebhookEvent
	if err := q.Order("received_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
