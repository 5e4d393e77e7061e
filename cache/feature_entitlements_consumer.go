package cache

import (
	"context"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

func (c *Cache) StartFeatureEntitlementsConsumer(ctx context.Context) error {
	return startGenericConsumer(ctx, c, ConsumerConfig[models.FeatureEntitlement]{
		Topic:     c.cdcTopic("feature_entitlements"),
		ModelName: "feature_entitlement",
		IsDeleted: func(fe *models.FeatureEntitlement) bool {
			return fe.DeletedAt.Valid
		},
		GetKey: func(fe *models.FeatureEntitlement) string {
			return c.buildEntitlementKey(fe.PlanID, fe.FeatureKey)
		},
		GetID: func(fe *models.FeatureEntitlement) string {
			return fe.ID
		},
		GetUpdatedAt: func(fe *models.FeatureEntitlement) int64 {
			return fe.UpdatedAt.UnixMilli()
		},
		GetCached: func(fe *models.FeatureEntitlement) utils.Result[*models.FeatureEntitlement] {
			return c.GetFeatureEntitlement(fe.PlanID, fe.FeatureKey)
		},
		SetCache: func(fe *models.FeatureEntitlement) utils.Result[bool] {
			return c.SetFeatureEntitlement(fe)
		},
	})
}
