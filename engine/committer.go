package engine

import (
	"errors"
	"log/slog"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// ConsumptionCommitter re-checks an entitlement and commits usage. For
// quota features the commit is a conditional atomic increment, so the
// counter can never exceed the cap even when checks overlap.
type ConsumptionCommitter struct {
	store      *models.ApiStore
	checker    *EntitlementChecker
	usageCache *models.UsageCache
	logger     *slog.Logger
}

func NewConsumptionCommitter(store *models.ApiStore, checker *EntitlementChecker, usageCache *models.UsageCache, logger *slog.Logger) *ConsumptionCommitter {
	return &ConsumptionCommitter{
		store:      store,
		checker:    checker,
		usageCache: usageCache,
		logger:     logger,
	}
}

// Consume commits amount units of a feature against the subscription. A
// failed re-check surfaces as a FeatureBlockedError: the caller already
// decided the action should proceed, so a denial here is exceptional.
func (s *ConsumptionCommitter) Consume(sub *models.Subscription, featureKey string, amount int64) utils.Result[*ConsumeResult] {
	checkResult := s.checker.CheckSubscription(sub, featureKey, amount)
	if checkResult.Failure() {
		return utils.FailedResult[*ConsumeResult](checkResult.Error())
	}

	check := checkResult.Value()
	if !check.Ok {
		return blockedResult[*ConsumeResult](featureKey, check)
	}

	if check.Entitlement.Kind != models.FeatureKindQuota {
		// Toggle and metered features consume nothing from the ledger.
		return utils.SuccessResult(&ConsumeResult{
			Ok:        true,
			NewUsed:   check.Used,
			Used:      check.Used,
			Limit:     check.Limit,
			Remaining: check.Remaining,
		})
	}

	return s.commitQuota(sub, check, amount)
}

func (s *ConsumptionCommitter) commitQuota(sub *models.Subscription, check *CheckResult, amount int64) utils.Result[*ConsumeResult] {
	ent := check.Entitlement
	holder := sub.Holder()

	incResult := s.store.IncrementUsage(holder, ent.FeatureKey, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, amount, ent.MonthlyCap)
	if incResult.Failure() {
		if errors.Is(incResult.Error(), models.ErrUsageCapReached) {
			// A concurrent commit won the remaining quota between our
			// check and this statement.
			lost := denied(ReasonQuotaExceeded)
			lost.Limit = check.Limit
			lost.Used = check.Used
			lost.Remaining = check.Remaining
			return blockedResult[*ConsumeResult](ent.FeatureKey, lost)
		}
		return utils.FailedResult[*ConsumeResult](incResult.Error())
	}

	rec := incResult.Value()
	limit := rec.TotalAllowed(ent.MonthlyCap)

	s.expireUsageView(holder, ent.FeatureKey)

	return utils.SuccessResult(&ConsumeResult{
		Ok:        true,
		NewUsed:   rec.Used,
		Used:      rec.Used,
		Limit:     &limit,
		Remaining: rec.Remaining(ent.MonthlyCap),
	})
}

func (s *ConsumptionCommitter) expireUsageView(holder models.Holder, featureKey string) {
	cacheResult := s.usageCache.Expire(holder, featureKey)
	if cacheResult.Failure() {
		s.logger.Error("failed to expire usage view cache",
			slog.String("holder", holder.Key()),
			slog.String("feature_key", featureKey),
			slog.String("error", cacheResult.ErrorMsg()),
		)
		utils.CaptureError(cacheResult.Error())
	}
}
