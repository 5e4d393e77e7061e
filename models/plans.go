package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/utils"
)

type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierStarter    PlanTier = "starter"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

type PlanInterval string

const (
	PlanIntervalMonthly PlanInterval = "monthly"
	PlanIntervalYearly  PlanInterval = "yearly"
)

// Plan is read-only from the engine's perspective: the catalog is populated
// by the admin CRUD surface and only referenced here by id.
type Plan struct {
	ID         string         `gorm:"primaryKey;->" json:"id"`
	Product    ProductFamily  `gorm:"->" json:"product"`
	Tier       PlanTier       `gorm:"->" json:"tier"`
	Interval   PlanInterval   `gorm:"->" json:"interval"`
	PriceCents int64          `gorm:"->" json:"price_cents"`
	CreatedAt  time.Time      `gorm:"->" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"->" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index;->" json:"deleted_at"`
}

func (store *ApiStore) FetchPlan(planID string) utils.Result[*Plan] {
	var plan Plan
	result := store.db.Connection.First(&plan, "id = ?", planID)
	if result.Error != nil {
		return failedRecordResult[*Plan](result.Error)
	}

	return utils.SuccessResult(&plan)
}

// FetchFreePlan returns the free monthly plan of a product family. It is the
// plan auto-provisioned subscriptions are attached to.
func (store *ApiStore) FetchFreePlan(product ProductFamily) utils.Result[*Plan] {
	var plan Plan
	result := store.db.Connection.
		First(&plan, "product = ? AND tier = ? AND interval = ?", product, PlanTierFree, PlanIntervalMonthly)
	if result.Error != nil {
		return failedRecordResult[*Plan](result.Error)
	}

	return utils.SuccessResult(&plan)
}
