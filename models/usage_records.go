package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hireloop/entitlements-engine/utils"
)

// ErrUsageCapReached is returned by IncrementUsage when the conditional
// update matched no row: committing the amount would push used past
// monthly_cap + extra_allowance.
var ErrUsageCapReached = errors.New("usage cap reached")

// UsageRecord counts consumption of one feature by one holder within one
// billing period. Period boundaries are copied from the subscription at
// creation time and never mutated; a new period gets a new record.
type UsageRecord struct {
	ID             string     `gorm:"primaryKey"`
	HolderType     HolderType `gorm:"column:holder_type"`
	HolderID       string     `gorm:"column:holder_id"`
	FeatureKey     string     `gorm:"column:feature_key"`
	PeriodStart    time.Time  `gorm:"column:period_start"`
	PeriodEnd      time.Time  `gorm:"column:period_end"`
	Used           int64      `gorm:"column:used"`
	ExtraAllowance int64      `gorm:"column:extra_allowance"`
	LastResetAt    utils.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (rec *UsageRecord) TotalAllowed(monthlyCap int64) int64 {
	return monthlyCap + rec.ExtraAllowance
}

func (rec *UsageRecord) Remaining(monthlyCap int64) int64 {
	return rec.TotalAllowed(monthlyCap) - rec.Used
}

// GetOrCreateUsageRecord is idempotent on the (holder, feature, period)
// 4-tuple: the insert conflicts against the unique index on those columns
// and the existing row is read back.
func (store *ApiStore) GetOrCreateUsageRecord(holder Holder, featureKey string, periodStart, periodEnd time.Time) utils.Result[*UsageRecord] {
	rec := UsageRecord{
		ID:          uuid.New().String(),
		HolderType:  holder.Type,
		HolderID:    holder.ID,
		FeatureKey:  featureKey,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}

	result := store.db.Connection.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)

	if result.Error != nil {
		return utils.FailedResult[*UsageRecord](result.Error)
	}
	if result.RowsAffected == 0 {
		return store.fetchUsageRecord(holder, featureKey, periodStart, periodEnd)
	}

	return utils.SuccessResult(&rec)
}

func (store *ApiStore) fetchUsageRecord(holder Holder, featureKey string, periodStart, periodEnd time.Time) utils.Result[*UsageRecord] {
	var rec UsageRecord

	result := store.db.Connection.
		Where("holder_type = ? AND holder_id = ? AND feature_key = ? AND period_start = ? AND period_end = ?",
			holder.Type, holder.ID, featureKey, periodStart, periodEnd).
		Limit(1).
		Find(&rec)

	if result.Error != nil {
		return failedRecordResult[*UsageRecord](result.Error)
	}
	if rec.ID == "" {
		return failedRecordResult[*UsageRecord](gorm.ErrRecordNotFound)
	}

	return utils.SuccessResult(&rec)
}

// IncrementUsage commits consumption as one conditional atomic statement:
// the increment and the cap check happen in the same UPDATE, so concurrent
// callers can never push used past monthly_cap + extra_allowance.
func (store *ApiStore) IncrementUsage(holder Holder, featureKey string, periodStart, periodEnd time.Time, amount int64, monthlyCap int64) utils.Result[*UsageRecord] {
	var rec UsageRecord

	result := store.db.Connection.
		Model(&rec).
		Clauses(clause.Returning{}).
		Where("holder_type = ? AND holder_id = ? AND feature_key = ? AND period_start = ? AND period_end = ? AND used + ? <= ? + extra_allowance",
			holder.Type, holder.ID, featureKey, periodStart, periodEnd, amount, monthlyCap).
		UpdateColumn("used", gorm.Expr("used + ?", amount))

	if result.Error != nil {
		return utils.FailedResult[*UsageRecord](result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.FailedResult[*UsageRecord](ErrUsageCapReached).NonCapturable().NonRetryable()
	}

	return utils.SuccessResult(&rec)
}

// ResetUsage zeroes the counter and stamps last_reset_at. Extra allowance is
// left untouched. Running it twice for the same period is a no-op.
func (store *ApiStore) ResetUsage(holder Holder, featureKey string, periodStart, periodEnd time.Time, now time.Time) utils.Result[*UsageRecord] {
	var rec UsageRecord

	result := store.db.Connection.
		Model(&rec).
		Clauses(clause.Returning{}).
		Where("holder_type = ? AND holder_id = ? AND feature_key = ? AND period_start = ? AND period_end = ?",
			holder.Type, holder.ID, featureKey, periodStart, periodEnd).
		UpdateColumns(map[string]interface{}{
			"used":          0,
			"last_reset_at": now,
		})

	if result.Error != nil {
		return utils.FailedResult[*UsageRecord](result.Error)
	}
	if result.RowsAffected == 0 {
		return failedRecordResult[*UsageRecord](gorm.ErrRecordNotFound)
	}

	return utils.SuccessResult(&rec)
}

// GrantExtraAllowance adds admin-granted bonus quota on top of the plan cap
// for the current period's record.
func (store *ApiStore) GrantExtraAllowance(holder Holder, featureKey string, periodStart, periodEnd time.Time, amount int64) utils.Result[*UsageRecord] {
	var rec UsageRecord

	result := store.db.Connection.
		Model(&rec).
		Clauses(clause.Returning{}).
		Where("holder_type = ? AND holder_id = ? AND feature_key = ? AND period_start = ? AND period_end = ?",
			holder.Type, holder.ID, featureKey, periodStart, periodEnd).
		UpdateColumn("extra_allowance", gorm.Expr("extra_allowance + ?", amount))

	if result.Error != nil {
		return utils.FailedResult[*UsageRecord](result.Error)
	}
	if result.RowsAffected == 0 {
		return failedRecordResult[*UsageRecord](gorm.ErrRecordNotFound)
	}

	return utils.SuccessResult(&rec)
}

// ResetEndedPeriodUsage is the bulk form run by period maintenance: zero the
// counter of every record whose period has ended and was not already reset.
func (store *ApiStore) ResetEndedPeriodUsage(now time.Time) utils.Result[int64] {
	result := store.db.Connection.
		Model(&UsageRecord{}).
		Where("period_end <= ? AND used <> 0", now).
		UpdateColumns(map[string]interface{}{
			"used":          0,
			"last_reset_at": now,
		})

	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(result.RowsAffected)
}
