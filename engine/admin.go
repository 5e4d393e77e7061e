package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// AdminService carries the override operations exposed to the back office:
// bonus quota, plan changes, cancellations and the manual period
// maintenance trigger.
type AdminService struct {
	store      *models.ApiStore
	catalog    models.CatalogReader
	resolver   *SubscriptionResolver
	usageCache *models.UsageCache
	flagger    models.Flagger
	logger     *slog.Logger
}

func NewAdminService(
	store *models.ApiStore,
	catalog models.CatalogReader,
	resolver *SubscriptionResolver,
	usageCache *models.UsageCache,
	flagger models.Flagger,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		store:      store,
		catalog:    catalog,
		resolver:   resolver,
		usageCache: usageCache,
		flagger:    flagger,
		logger:     logger,
	}
}

// MaintenanceReport summarizes one period maintenance run.
type MaintenanceReport struct {
	CanceledSubscriptions int64 `json:"canceled_subscriptions"`
	ResetUsageRecords     int64 `json:"reset_usage_records"`
}

// GrantExtraAllowance adds bonus quota on top of the plan cap for the
// current period. The grant is additive and unbounded.
func (s *AdminService) GrantExtraAllowance(holder models.Holder, featureKey string, amount int64) utils.Result[*models.UsageRecord] {
	if amount <= 0 {
		return utils.FailedResult[*models.UsageRecord](fmt.Errorf("amount must be positive, got %d", amount)).
			NonCapturable().
			NonRetryable()
	}

	subResult := s.resolver.ActiveSubscription(holder)
	if subResult.Failure() {
		if isNotFound(subResult) {
			return utils.FailedResult[*models.UsageRecord](subResult.Error()).
				AddErrorDetails(string(ReasonNoSubscription), "holder has no active subscription").
				NonCapturable().
				NonRetryable()
		}
		return utils.FailedResult[*models.UsageRecord](subResult.Error())
	}
	sub := subResult.Value()

	// Make sure the current period's record exists before touching it.
	usageResult := s.store.GetOrCreateUsageRecord(holder, featureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if usageResult.Failure() {
		return usageResult
	}

	grantResult := s.store.GrantExtraAllowance(holder, featureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, amount)
	if grantResult.Failure() {
		return grantResult
	}

	s.logger.Info("granted extra allowance",
		slog.String("holder", holder.Key()),
		slog.String("feature_key", featureKey),
		slog.Int64("amount", amount),
	)

	s.invalidate(holder, featureKey)

	return grantResult
}

// ChangePlan swaps the subscription's plan reference. Usage is neither
// reset nor migrated: the existing counters are immediately enforced
// against the new plan's caps.
func (s *AdminService) ChangePlan(subscriptionID string, newPlanID string) utils.Result[*models.Subscription] {
	planResult := s.catalog.FetchPlan(newPlanID)
	if planResult.Failure() {
		if isNotFound(planResult) {
			return utils.FailedResult[*models.Subscription](planResult.Error()).
				AddErrorDetails(string(ReasonInvalidPlan), fmt.Sprintf("plan %s does not exist", newPlanID)).
				NonCapturable().
				NonRetryable()
		}
		return utils.FailedResult[*models.Subscription](planResult.Error())
	}

	subResult := s.store.UpdateSubscriptionPlan(subscriptionID, newPlanID)
	if subResult.Failure() {
		return subResult
	}
	sub := subResult.Value()

	s.logger.Info("changed subscription plan",
		slog.String("subscription_id", sub.ID),
		slog.String("plan_id", newPlanID),
	)

	s.flagHolder(sub.Holder())

	return subResult
}

// CancelSubscription cancels now or schedules the cancellation for period
// end; the scheduled path leaves the subscription active until period
// maintenance finalizes it.
func (s *AdminService) CancelSubscription(subscriptionID string, immediate bool) utils.Result[*models.Subscription] {
	var subResult utils.Result[*models.Subscription]

	if immediate {
		subResult = s.store.CancelSubscriptionNow(subscriptionID)
	} else {
		currentResult := s.store.FetchSubscription(subscriptionID)
		if currentResult.Failure() {
			return currentResult
		}
		subResult = s.store.ScheduleSubscriptionCancellation(subscriptionID, currentResult.Value().CurrentPeriodEnd)
	}

	if subResult.Failure() {
		return subResult
	}
	sub := subResult.Value()

	s.logger.Info("cancellation requested",
		slog.String("subscription_id", sub.ID),
		slog.Bool("immediate", immediate),
	)

	s.flagHolder(sub.Holder())

	return subResult
}

// Entitlements returns the normalized per-feature view for every feature
// the holder's current plan defines.
func (s *AdminService) Entitlements(holder models.Holder) utils.Result[[]EntitlementInfo] {
	subResult := s.resolver.ActiveSubscription(holder)
	if subResult.Failure() {
		if isNotFound(subResult) {
			return utils.FailedResult[[]EntitlementInfo](subResult.Error()).
				AddErrorDetails(string(ReasonNoSubscription), "holder has no active subscription").
				NonCapturable().
				NonRetryable()
		}
		return utils.FailedResult[[]EntitlementInfo](subResult.Error())
	}
	sub := subResult.Value()

	entsResult := s.catalog.FetchPlanEntitlements(sub.PlanID)
	if entsResult.Failure() {
		return utils.FailedResult[[]EntitlementInfo](entsResult.Error())
	}

	infos := make([]EntitlementInfo, 0, len(entsResult.Value()))
	for _, ent := range entsResult.Value() {
		infoResult := s.entitlementInfo(sub, ent)
		if infoResult.Failure() {
			return utils.FailedResult[[]EntitlementInfo](infoResult.Error())
		}
		infos = append(infos, *infoResult.Value())
	}

	return utils.SuccessResult(infos)
}

func (s *AdminService) entitlementInfo(sub *models.Subscription, ent *models.Entitlement) utils.Result[*EntitlementInfo] {
	info := &EntitlementInfo{
		FeatureKey:  ent.FeatureKey,
		FeatureName: ent.FeatureName,
		Kind:        ent.Kind.String(),
		Unit:        ent.Unit,
		Enabled:     ent.Enabled,
	}

	// Toggle reports no limit and no usage; metered reports no live usage
	// either, its billing happens out of band.
	if ent.Kind != models.FeatureKindQuota {
		return utils.SuccessResult(info)
	}

	usageResult := s.store.GetOrCreateUsageRecord(sub.Holder(), ent.FeatureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if usageResult.Failure() {
		return utils.FailedResult[*EntitlementInfo](usageResult.Error())
	}

	rec := usageResult.Value()
	limit := rec.TotalAllowed(ent.MonthlyCap)
	info.Limit = &limit
	info.Used = rec.Used
	info.Remaining = rec.Remaining(ent.MonthlyCap)

	return utils.SuccessResult(info)
}

// RunPeriodMaintenance performs what the billing-cycle job does once per
// cycle: finalize scheduled cancellations whose period ended and zero usage
// counters of ended periods. Safe to run repeatedly.
func (s *AdminService) RunPeriodMaintenance(now time.Time) utils.Result[*MaintenanceReport] {
	canceledResult := s.store.FinalizeScheduledCancellations(now)
	if canceledResult.Failure() {
		return utils.FailedResult[*MaintenanceReport](canceledResult.Error())
	}

	resetResult := s.store.ResetEndedPeriodUsage(now)
	if resetResult.Failure() {
		return utils.FailedResult[*MaintenanceReport](resetResult.Error())
	}

	report := &MaintenanceReport{
		CanceledSubscriptions: canceledResult.Value(),
		ResetUsageRecords:     resetResult.Value(),
	}

	s.logger.Info("period maintenance completed",
		slog.Int64("canceled_subscriptions", report.CanceledSubscriptions),
		slog.Int64("reset_usage_records", report.ResetUsageRecords),
	)

	return utils.SuccessResult(report)
}

// ResetUsage zeroes the current period's counter for one holder and
// feature. Extra allowance survives the reset.
func (s *AdminService) ResetUsage(holder models.Holder, featureKey string) utils.Result[*models.UsageRecord] {
	subResult := s.resolver.ActiveSubscription(holder)
	if subResult.Failure() {
		return utils.FailedResult[*models.UsageRecord](subResult.Error())
	}
	sub := subResult.Value()

	resetResult := s.store.ResetUsage(holder, featureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, time.Now())
	if resetResult.Failure() {
		return resetResult
	}

	s.invalidate(holder, featureKey)

	return resetResult
}

func (s *AdminService) invalidate(holder models.Holder, featureKey string) {
	cacheResult := s.usageCache.Expire(holder, featureKey)
	if cacheResult.Failure() {
		s.logger.Error("failed to expire usage view cache",
			slog.String("holder", holder.Key()),
			slog.String("error", cacheResult.ErrorMsg()),
		)
		utils.CaptureError(cacheResult.Error())
	}

	s.flagHolder(holder)
}

func (s *AdminService) flagHolder(holder models.Holder) {
	if err := s.flagger.Flag(holder.Key()); err != nil {
		s.logger.Error("failed to flag holder for refresh",
			slog.String("holder", holder.Key()),
			slog.String("error", err.Error()),
		)
		utils.CaptureError(err)
	}
}
