package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/internal/users"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
)

// ActivateInput carries the Stripe ids and entitlement granted at checkout.
type ActivateInput struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Plan                 enums.SubscriptionPlan
	CurrentPeriodEnd     *time.Time
}

// Service owns per-user subscription state. Every write is an overwrite keyed
// by a stable id, so replaying the same input is harmless.
type Service struct {
	repo  *Repository
	users *users.Repository
}

func NewService(repo *Repository, userRepo *users.Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("subscription repository required")
	}
	if userRepo == nil {
		return nil, errors.New("user repository required")
	}
	return &Service{repo: repo, users: userRepo}, nil
}

// WithTx returns a service whose reads and writes run on tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	return &Service{repo: s.repo.WithTx(tx), users: s.users.WithTx(tx)}
}

// GetOrCreate returns the user's subscription, creating a FREE/active row on
// first reference.
func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.IsGuest {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "guests do not have subscriptions")
	}

	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub != nil {
		return sub, nil
	}

	if err := s.repo.CreateIfAbsent(ctx, &models.Subscription{
		UserID:   userID,
		PlanCode: enums.SubscriptionPlanFree,
		Status:   enums.SubscriptionStatusActive,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	sub, err = s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription not persisted")
	}
	return sub, nil
}

// Activate records a completed checkout.
func (s *Service) Activate(ctx context.Context, userID uuid.UUID, input ActivateInput) (*models.Subscription, error) {
	sub, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.StripeSubscriptionID != "" {
		sub.StripeSubscriptionID = &input.StripeSubscriptionID
	}
	if input.StripeCustomerID != "" {
		sub.StripeCustomerID = &input.StripeCustomerID
	}
	sub.PlanCode = input.Plan
	sub.Status = enums.SubscriptionStatusActive
	sub.CurrentPeriodEnd = input.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = false
	return sub, s.Save(ctx, sub)
}

// Renew extends the period after a successful invoice payment.
func (s *Service) Renew(ctx context.Context, userID uuid.UUID, periodEnd *time.Time) (*models.Subscription, error) {
	sub, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.Status = enums.SubscriptionStatusActive
	return sub, s.Save(ctx, sub)
}

func (s *Service) MarkPastDue(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub.Status = enums.SubscriptionStatusPastDue
	return sub, s.Save(ctx, sub)
}

func (s *Service) Save(ctx context.Context, sub *models.Subscription) error {
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "subscription is required")
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	return nil
}

func (s *Service) FindByStripeSubscriptionID(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.repo.FindByStripeSubscriptionID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find subscription by stripe id")
	}
	return sub, nil
}

func (s *Service) FindByStripeCustomerID(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.repo.FindByStripeCustomerID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find subscription by customer id")
	}
	return sub, nil
}

// DowngradeExpired moves canceled subscriptions whose paid period has ended
// back to FREE and returns how many rows changed.
func (s *Service) DowngradeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	subs, err := s.repo.ListExpiredCanceled(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired subscriptions")
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	n, err := s.repo.DowngradeToFree(ctx, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "downgrade subscriptions")
	}
	return int(n), nil
}

// EncodeMetadata snapshots Stripe metadata into a JSON column value.
func EncodeMetadata(metadata map[string]string) (datatypes.JSON, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
