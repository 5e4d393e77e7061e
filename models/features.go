package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/utils"
)

type FeatureKind int

const (
	FeatureKindToggle FeatureKind = iota
	FeatureKindQuota
	FeatureKindMetered
)

func (k FeatureKind) String() string {
	kind := ""

	switch k {
	case FeatureKindToggle:
		kind = "toggle"
	case FeatureKindQuota:
		kind = "quota"
	case FeatureKindMetered:
		kind = "metered"
	}

	return kind
}

// Known reports whether the kind is one the checker understands. Rows with
// an unrecognized kind are surfaced as UNKNOWN_FEATURE_KIND rather than
// silently allowed.
func (k FeatureKind) Known() bool {
	return k.String() != ""
}

// Feature is a billable capability identified by a stable key. Unit is only
// meaningful for metered features.
type Feature struct {
	Key       string         `gorm:"primaryKey;column:key;->" json:"key"`
	Name      string         `gorm:"->" json:"name"`
	Kind      FeatureKind    `gorm:"->" json:"kind"`
	Unit      string         `gorm:"->" json:"unit"`
	CreatedAt time.Time      `gorm:"->" json:"created_at"`
	UpdatedAt time.Time      `gorm:"->" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index;->" json:"deleted_at"`
}

// FeatureEntitlement is the allowance a plan grants for one feature.
// MonthlyCap is only meaningful for quota features.
type FeatureEntitlement struct {
	ID         string         `gorm:"primaryKey;->" json:"id"`
	PlanID     string         `gorm:"->" json:"plan_id"`
	FeatureKey string         `gorm:"->" json:"feature_key"`
	Enabled    bool           `gorm:"->" json:"enabled"`
	MonthlyCap int64          `gorm:"->" json:"monthly_cap"`
	CreatedAt  time.Time      `gorm:"->" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"->" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index;->" json:"deleted_at"`
}

// Entitlement is the feature/entitlement join the checker works with.
type Entitlement struct {
	PlanID      string      `json:"plan_id"`
	FeatureKey  string      `json:"feature_key"`
	FeatureName string      `json:"feature_name"`
	Kind        FeatureKind `json:"kind"`
	Unit        string      `json:"unit"`
	Enabled     bool        `json:"enabled"`
	MonthlyCap  int64       `json:"monthly_cap"`
}

func NewEntitlement(feature *Feature, fe *FeatureEntitlement) *Entitlement {
	return &Entitlement{
		PlanID:      fe.PlanID,
		FeatureKey:  fe.FeatureKey,
		FeatureName: feature.Name,
		Kind:        feature.Kind,
		Unit:        feature.Unit,
		Enabled:     fe.Enabled,
		MonthlyCap:  fe.MonthlyCap,
	}
}

// CatalogReader is the read-only catalog surface the checker depends on.
// It is implemented by the ApiStore (direct reads) and by the local catalog
// cache.
type CatalogReader interface {
	FetchPlan(planID string) utils.Result[*Plan]
	FetchEntitlement(planID string, featureKey string) utils.Result[*Entitlement]
	FetchPlanEntitlements(planID string) utils.Result[[]*Entitlement]
}

var entitlementColumns = `
	feature_entitlements.plan_id,
	feature_entitlements.feature_key,
	features.name AS feature_name,
	features.kind,
	features.unit,
	feature_entitlements.enabled,
	feature_entitlements.monthly_cap
`

func (store *ApiStore) FetchEntitlement(planID string, featureKey string) utils.Result[*Entitlement] {
	var ent Entitlement
	result := store.db.Connection.
		Table("feature_entitlements").
		Select(entitlementColumns).
		Joins("INNER JOIN features ON features.key = feature_entitlements.feature_key").
		Where("feature_entitlements.plan_id = ? AND feature_entitlements.feature_key = ?", planID, featureKey).
		Where("feature_entitlements.deleted_at IS NULL AND features.deleted_at IS NULL").
		Limit(1).
		Find(&ent)

	if result.Error != nil {
		return failedRecordResult[*Entitlement](result.Error)
	}
	if ent.FeatureKey == "" {
		return utils.FailedResult[*Entitlement](gorm.ErrRecordNotFound).NonCapturable().NonRetryable()
	}

	return utils.SuccessResult(&ent)
}

func (store *ApiStore) FetchPlanEntitlements(planID string) utils.Result[[]*Entitlement] {
	var entitlements []*Entitlement
	result := store.db.Connection.
		Table("feature_entitlements").
		Select(entitlementColumns).
		Joins("INNER JOIN features ON features.key = feature_entitlements.feature_key").
		Where("feature_entitlements.plan_id = ?", planID).
		Where("feature_entitlements.deleted_at IS NULL AND features.deleted_at IS NULL").
		Order("feature_entitlements.feature_key ASC").
		Find(&entitlements)

	if result.Error != nil {
		return utils.FailedResult[[]*Entitlement](result.Error)
	}

	return utils.SuccessResult(entitlements)
}

func (store *ApiStore) FetchAllFeatures() utils.Result[[]Feature] {
	var features []Feature
	result := store.db.Connection.Find(&features)
	if result.Error != nil {
		return utils.FailedResult[[]Feature](result.Error)
	}

	return utils.SuccessResult(features)
}

func (store *ApiStore) FetchAllFeatureEntitlements() utils.Result[[]FeatureEntitlement] {
	var entitlements []FeatureEntitlement
	result := store.db.Connection.Find(&entitlements)
	if result.Error != nil {
		return utils.FailedResult[[]FeatureEntitlement](result.Error)
	}

	return utils.SuccessResult(entitlements)
}

func (store *ApiStore) FetchAllPlans() utils.Result[[]Plan] {
	var plans []Plan
	result := store.db.Connection.Find(&plans)
	if result.Error != nil {
		return utils.FailedResult[[]Plan](result.Error)
	}

	return utils.SuccessResult(plans)
}
