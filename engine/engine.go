package engine

import (
	"context"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// Engine is the facade request handlers call. Check and Consume provision a
// free-tier subscription for first-time holders before evaluating the
// feature, so the very first billable action a new account attempts is
// gated against its free plan.
type Engine struct {
	resolver  *SubscriptionResolver
	checker   *EntitlementChecker
	committer *ConsumptionCommitter
	admin     *AdminService
}

func NewEngine(resolver *SubscriptionResolver, checker *EntitlementChecker, committer *ConsumptionCommitter, admin *AdminService) *Engine {
	return &Engine{
		resolver:  resolver,
		checker:   checker,
		committer: committer,
		admin:     admin,
	}
}

func (e *Engine) Check(ctx context.Context, holder models.Holder, featureKey string, amount int64) utils.Result[*CheckResult] {
	subResult := e.resolver.EnsureSubscription(ctx, holder)
	if subResult.Failure() {
		if subResult.ErrorCode() == string(ReasonConfigurationError) {
			return utils.SuccessResult(denied(ReasonConfigurationError))
		}
		if isNotFound(subResult) {
			return utils.SuccessResult(denied(ReasonNoSubscription))
		}
		return utils.FailedResult[*CheckResult](subResult.Error())
	}

	return e.checker.CheckSubscription(subResult.Value(), featureKey, amount)
}

func (e *Engine) Consume(ctx context.Context, holder models.Holder, featureKey string, amount int64) utils.Result[*ConsumeResult] {
	subResult := e.resolver.EnsureSubscription(ctx, holder)
	if subResult.Failure() {
		if subResult.ErrorCode() == string(ReasonConfigurationError) {
			return blockedResult[*ConsumeResult](featureKey, denied(ReasonConfigurationError))
		}
		if isNotFound(subResult) {
			return blockedResult[*ConsumeResult](featureKey, denied(ReasonNoSubscription))
		}
		return utils.FailedResult[*ConsumeResult](subResult.Error())
	}

	return e.committer.Consume(subResult.Value(), featureKey, amount)
}

func (e *Engine) Admin() *AdminService {
	return e.admin
}

func (e *Engine) Resolver() *SubscriptionResolver {
	return e.resolver
}

func (e *Engine) Checker() *EntitlementChecker {
	return e.checker
}
