package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// SubscriptionResolver finds a holder's active subscription and, on demand,
// provisions the free-tier one a first-time holder is entitled to.
// Resolution and provisioning are split on purpose: reads stay reads, and
// callers opt into the side effect by calling EnsureSubscription.
type SubscriptionResolver struct {
	store    *models.ApiStore
	notifier *ProvisioningNotifier
	logger   *slog.Logger
}

func NewSubscriptionResolver(store *models.ApiStore, notifier *ProvisioningNotifier, logger *slog.Logger) *SubscriptionResolver {
	return &SubscriptionResolver{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// ActiveSubscription is a pure read of the holder's active subscription.
func (s *SubscriptionResolver) ActiveSubscription(holder models.Holder) utils.Result[*models.Subscription] {
	return s.store.FetchActiveSubscription(holder, time.Now())
}

// EnsureSubscription returns the holder's active subscription, provisioning
// a free-tier one when none exists. The insert is an atomic upsert, so two
// racing first-time callers end up sharing a single subscription. A missing
// free plan in the catalog is a configuration error, not an absent
// subscription.
func (s *SubscriptionResolver) EnsureSubscription(ctx context.Context, holder models.Holder) utils.Result[*models.Subscription] {
	now := time.Now()

	activeResult := s.store.FetchActiveSubscription(holder, now)
	if activeResult.Success() || !isNotFound(activeResult) {
		return activeResult
	}

	productResult := s.inferProductFamily(holder)
	if productResult.Failure() {
		return utils.FailedResult[*models.Subscription](productResult.Error())
	}
	product := productResult.Value()

	planResult := s.store.FetchFreePlan(product)
	if planResult.Failure() {
		if isNotFound(planResult) {
			err := fmt.Errorf("no free plan configured for product %q", product)
			s.logger.Error("cannot auto-provision subscription",
				slog.String("holder", holder.Key()),
				slog.String("product", string(product)),
				slog.String("error", err.Error()),
			)
			return utils.FailedResult[*models.Subscription](err).
				AddErrorDetails(string(ReasonConfigurationError), err.Error()).
				NonRetryable()
		}
		return utils.FailedResult[*models.Subscription](planResult.Error())
	}
	plan := planResult.Value()

	subResult := s.store.CreateSubscription(holder, plan.ID, now)
	if subResult.Failure() {
		return subResult
	}
	sub := subResult.Value()

	s.logger.Info("auto-provisioned free-tier subscription",
		slog.String("holder", holder.Key()),
		slog.String("subscription_id", sub.ID),
		slog.String("plan_id", plan.ID),
	)

	s.notifier.NotifyProvisioned(ctx, sub, plan)

	return subResult
}

// inferProductFamily decides which product catalog a holder buys from:
// users get the individual catalog, organizations the one matching their
// kind.
func (s *SubscriptionResolver) inferProductFamily(holder models.Holder) utils.Result[models.ProductFamily] {
	if holder.Type == models.HolderTypeUser {
		return utils.SuccessResult(models.ProductIndividual)
	}

	orgResult := s.store.FetchOrganization(holder.ID)
	if orgResult.Failure() {
		return utils.FailedResult[models.ProductFamily](orgResult.Error())
	}

	return utils.SuccessResult(orgResult.Value().ProductFamily())
}
