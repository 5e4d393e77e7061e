package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hireloop/entitlements-engine/utils"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

type Subscription struct {
	ID                        string             `gorm:"primaryKey"`
	HolderType                HolderType         `gorm:"column:holder_type"`
	HolderID                  string             `gorm:"column:holder_id"`
	PlanID                    string             `gorm:"column:plan_id"`
	Status                    SubscriptionStatus `gorm:"column:status"`
	CurrentPeriodStart        time.Time          `gorm:"column:current_period_start"`
	CurrentPeriodEnd          time.Time          `gorm:"column:current_period_end"`
	ScheduledCancellationDate utils.NullTime     `gorm:"column:scheduled_cancellation_date"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (sub *Subscription) Holder() Holder {
	return Holder{Type: sub.HolderType, ID: sub.HolderID}
}

// FetchActiveSubscription is a pure read: the active subscription whose
// billing period covers now, or record-not-found.
func (store *ApiStore) FetchActiveSubscription(holder Holder, now time.Time) utils.Result[*Subscription] {
	var sub Subscription

	result := store.db.Connection.
		Where("holder_type = ? AND holder_id = ? AND status = ? AND current_period_end >= ?",
			holder.Type, holder.ID, SubscriptionStatusActive, now).
		Order("current_period_start DESC").
		Limit(1).
		Find(&sub)

	if result.Error != nil {
		return failedRecordResult[*Subscription](result.Error)
	}
	if sub.ID == "" {
		return failedRecordResult[*Subscription](gorm.ErrRecordNotFound)
	}

	return utils.SuccessResult(&sub)
}

func (store *ApiStore) FetchSubscription(subscriptionID string) utils.Result[*Subscription] {
	var sub Subscription
	result := store.db.Connection.First(&sub, "id = ?", subscriptionID)
	if result.Error != nil {
		return failedRecordResult[*Subscription](result.Error)
	}

	return utils.SuccessResult(&sub)
}

// CreateSubscription inserts a new active subscription. The insert relies on
// the partial unique index on (holder_type, holder_id) WHERE status =
// 'active': concurrent first-use provisioning attempts conflict instead of
// both inserting, and the loser re-reads the winner's row.
func (store *ApiStore) CreateSubscription(holder Holder, planID string, now time.Time) utils.Result[*Subscription] {
	sub := Subscription{
		ID:                 uuid.New().String(),
		HolderType:         holder.Type,
		HolderID:           holder.ID,
		PlanID:             planID,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(1, 0, 0),
	}

	result := store.db.Connection.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sub)

	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the provisioning race; the other caller's row is the one.
		return store.FetchActiveSubscription(holder, now)
	}

	return utils.SuccessResult(&sub)
}

func (store *ApiStore) UpdateSubscriptionPlan(subscriptionID string, planID string) utils.Result[*Subscription] {
	result := store.db.Connection.
		Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Update("plan_id", planID)

	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}
	if result.RowsAffected == 0 {
		return failedRecordResult[*Subscription](gorm.ErrRecordNotFound)
	}

	return store.FetchSubscription(subscriptionID)
}

// CancelSubscriptionNow flips the subscription to canceled immediately.
func (store *ApiStore) CancelSubscriptionNow(subscriptionID string) utils.Result[*Subscription] {
	result := store.db.Connection.
		Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Update("status", SubscriptionStatusCanceled)

	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}
	if result.RowsAffected == 0 {
		return failedRecordResult[*Subscription](gorm.ErrRecordNotFound)
	}

	return store.FetchSubscription(subscriptionID)
}

// ScheduleSubscriptionCancellation leaves the subscription active and stamps
// the date period maintenance will cancel it at.
func (store *ApiStore) ScheduleSubscriptionCancellation(subscriptionID string, at time.Time) utils.Result[*Subscription] {
	result := store.db.Connection.
		Model(&Subscription{}).
		Where("id = ?", subscriptionID).
		Update("scheduled_cancellation_date", at)

	if result.Error != nil {
		return utils.FailedResult[*Subscription](result.Error)
	}
	if result.RowsAffected == 0 {
		return failedRecordResult[*Subscription](gorm.ErrRecordNotFound)
	}

	return store.FetchSubscription(subscriptionID)
}

// FinalizeScheduledCancellations cancels every active subscription whose
// scheduled cancellation date has been reached and whose period has ended.
// Idempotent: a second run matches no rows.
func (store *ApiStore) FinalizeScheduledCancellations(now time.Time) utils.Result[int64] {
	result := store.db.Connection.
		Model(&Subscription{}).
		Where("status = ? AND scheduled_cancellation_date IS NOT NULL AND scheduled_cancellation_date <= ? AND current_period_end <= ?",
			SubscriptionStatusActive, now, now).
		Update("status", SubscriptionStatusCanceled)

	if result.Error != nil {
		return utils.FailedResult[int64](result.Error)
	}

	return utils.SuccessResult(result.RowsAffected)
}
