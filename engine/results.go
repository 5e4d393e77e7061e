package engine

import (
	"fmt"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// Reason classifies why a check denied a feature. All reasons are expected,
// recoverable outcomes returned as values, not errors.
type Reason string

const (
	ReasonNoSubscription     Reason = "NO_SUBSCRIPTION"
	ReasonInvalidPlan        Reason = "INVALID_PLAN"
	ReasonFeatureNotInPlan   Reason = "FEATURE_NOT_IN_PLAN"
	ReasonFeatureDisabled    Reason = "FEATURE_DISABLED"
	ReasonQuotaExceeded      Reason = "QUOTA_EXCEEDED"
	ReasonUnknownFeatureKind Reason = "UNKNOWN_FEATURE_KIND"
	ReasonConfigurationError Reason = "CONFIGURATION_ERROR"
)

// CheckResult is the outcome of an entitlement check. Limit is nil for
// toggle and metered features, where no cap applies.
type CheckResult struct {
	Ok        bool   `json:"ok"`
	Reason    Reason `json:"reason,omitempty"`
	Limit     *int64 `json:"limit,omitempty"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`

	// Entitlement the check was evaluated against, for callers that need
	// the catalog row without re-reading it. Nil when the check failed
	// before resolving one.
	Entitlement *models.Entitlement `json:"-"`
}

// ConsumeResult reports the counters after a committed consumption.
type ConsumeResult struct {
	Ok        bool   `json:"ok"`
	NewUsed   int64  `json:"new_used"`
	Used      int64  `json:"used"`
	Limit     *int64 `json:"limit,omitempty"`
	Remaining int64  `json:"remaining"`
}

// EntitlementInfo is the normalized per-feature view the admin surface
// renders for a holder.
type EntitlementInfo struct {
	FeatureKey  string `json:"feature_key"`
	FeatureName string `json:"feature_name"`
	Kind        string `json:"kind"`
	Unit        string `json:"unit,omitempty"`
	Enabled     bool   `json:"enabled"`
	Limit       *int64 `json:"limit"`
	Used        int64  `json:"used"`
	Remaining   int64  `json:"remaining"`
}

// FeatureBlockedError escalates a failed check inside Consume: a caller
// committing consumption has already decided the action should proceed, so
// a denial at that point is exceptional.
type FeatureBlockedError struct {
	FeatureKey string
	Reason     Reason
	Check      *CheckResult
}

func (e *FeatureBlockedError) Error() string {
	return fmt.Sprintf("feature %s blocked: %s", e.FeatureKey, e.Reason)
}

func allowed(ent *models.Entitlement) *CheckResult {
	return &CheckResult{Ok: true, Entitlement: ent}
}

func denied(reason Reason) *CheckResult {
	return &CheckResult{Ok: false, Reason: reason}
}

func isNotFound(result utils.AnyResult) bool {
	return result.Error() != nil && result.Error().Error() == models.ERROR_NOT_FOUND
}

func blockedResult[T any](featureKey string, check *CheckResult) utils.Result[T] {
	err := &FeatureBlockedError{
		FeatureKey: featureKey,
		Reason:     check.Reason,
		Check:      check,
	}

	return utils.FailedResult[T](err).
		AddErrorDetails(string(check.Reason), err.Error()).
		NonCapturable().
		NonRetryable()
}
