package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

// Repository persists subscription rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *Repository) FindByStripeSubscriptionID(ctx context.Context, id string) (*models.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return r.findOne(ctx, "stripe_subscription_id = ?", id)
}

func (r *Repository) FindByStripeCustomerID(ctx context.Context, id string) (*models.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return r.findOne(ctx, "stripe_customer_id = ?", id)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where(query, arg).Take(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// CreateIfAbsent inserts sub unless the user already has a row.
func (r *Repository) CreateIfAbsent(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(sub).Error
}

func (r *Repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// ListExpiredCanceled returns canceled paid rows whose period ended at or before cutoff.
func (r *Repository) ListExpiredCanceled(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusCanceled).
		Where("plan_code <> ?", enums.SubscriptionPlanFree).
		Where("current_period_end IS NOT NULL AND current_period_end <= ?", cutoff).
		Order("current_period_end ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// DowngradeToFree sets the plan of the given rows to FREE.
func (r *Repository) DowngradeToFree(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id IN ?", ids).
		Where("plan_code <> ?", enums.SubscriptionPlanFree).
		Updates(map[string]any{
			"plan_code":  enums.SubscriptionPlanFree,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
