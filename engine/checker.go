package engine

import (
	"fmt"
	"time"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// EntitlementChecker decides whether a holder may perform a billable action.
// The check path is a pure read: it never provisions subscriptions and the
// only write it can cause is the lazy creation of a zeroed usage record.
type EntitlementChecker struct {
	store   *models.ApiStore
	catalog models.CatalogReader
}

func NewEntitlementChecker(store *models.ApiStore, catalog models.CatalogReader) *EntitlementChecker {
	return &EntitlementChecker{
		store:   store,
		catalog: catalog,
	}
}

// CheckAllowed resolves the holder's active subscription and evaluates the
// feature against it. Holders without a subscription get NO_SUBSCRIPTION;
// use SubscriptionResolver.EnsureSubscription (or the Engine facade) when
// auto-provisioning is wanted.
func (s *EntitlementChecker) CheckAllowed(holder models.Holder, featureKey string, amount int64) utils.Result[*CheckResult] {
	if amount <= 0 {
		return utils.FailedResult[*CheckResult](fmt.Errorf("amount must be positive, got %d", amount)).
			NonCapturable().
			NonRetryable()
	}

	subResult := s.store.FetchActiveSubscription(holder, time.Now())
	if subResult.Failure() {
		if isNotFound(subResult) {
			return utils.SuccessResult(denied(ReasonNoSubscription))
		}
		return utils.FailedResult[*CheckResult](subResult.Error())
	}

	return s.CheckSubscription(subResult.Value(), featureKey, amount)
}

// CheckSubscription evaluates a feature against an already resolved
// subscription.
func (s *EntitlementChecker) CheckSubscription(sub *models.Subscription, featureKey string, amount int64) utils.Result[*CheckResult] {
	if amount <= 0 {
		return utils.FailedResult[*CheckResult](fmt.Errorf("amount must be positive, got %d", amount)).
			NonCapturable().
			NonRetryable()
	}

	planResult := s.catalog.FetchPlan(sub.PlanID)
	if planResult.Failure() {
		if isNotFound(planResult) {
			return utils.SuccessResult(denied(ReasonInvalidPlan))
		}
		return utils.FailedResult[*CheckResult](planResult.Error())
	}

	entResult := s.catalog.FetchEntitlement(sub.PlanID, featureKey)
	if entResult.Failure() {
		if isNotFound(entResult) {
			return utils.SuccessResult(denied(ReasonFeatureNotInPlan))
		}
		return utils.FailedResult[*CheckResult](entResult.Error())
	}

	ent := entResult.Value()

	// Deny rather than allow when the catalog carries a kind this binary
	// does not understand yet.
	if !ent.Kind.Known() {
		return utils.SuccessResult(denied(ReasonUnknownFeatureKind))
	}

	switch ent.Kind {
	case models.FeatureKindToggle:
		if !ent.Enabled {
			check := denied(ReasonFeatureDisabled)
			check.Entitlement = ent
			return utils.SuccessResult(check)
		}
		return utils.SuccessResult(allowed(ent))

	case models.FeatureKindMetered:
		// Post-paid, billed out of band from recorded usage.
		return utils.SuccessResult(allowed(ent))

	default:
		// Quota is the only remaining known kind.
		return s.checkQuota(sub, ent, amount)
	}
}

func (s *EntitlementChecker) checkQuota(sub *models.Subscription, ent *models.Entitlement, amount int64) utils.Result[*CheckResult] {
	usageResult := s.store.GetOrCreateUsageRecord(sub.Holder(), ent.FeatureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if usageResult.Failure() {
		return utils.FailedResult[*CheckResult](usageResult.Error())
	}

	rec := usageResult.Value()
	limit := rec.TotalAllowed(ent.MonthlyCap)
	remaining := rec.Remaining(ent.MonthlyCap)

	check := &CheckResult{
		Ok:          remaining >= amount,
		Limit:       &limit,
		Used:        rec.Used,
		Remaining:   remaining,
		Entitlement: ent,
	}
	if !check.Ok {
		check.Reason = ReasonQuotaExceeded
	}

	return utils.SuccessResult(check)
}
