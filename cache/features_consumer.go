package cache

import (
	"context"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

func (c *Cache) StartFeaturesConsumer(ctx context.Context) error {
	return startGenericConsumer(ctx, c, ConsumerConfig[models.Feature]{
		Topic:     c.cdcTopic("features"),
		ModelName: "feature",
		IsDeleted: func(feature *models.Feature) bool {
			return feature.DeletedAt.Valid
		},
		GetKey: func(feature *models.Feature) string {
			return c.buildFeatureKey(feature.Key)
		},
		GetID: func(feature *models.Feature) string {
			return feature.Key
		},
		GetUpdatedAt: func(feature *models.Feature) int64 {
			return feature.UpdatedAt.UnixMilli()
		},
		GetCached: func(feature *models.Feature) utils.Result[*models.Feature] {
			return c.GetFeature(feature.Key)
		},
		SetCache: func(feature *models.Feature) utils.Result[bool] {
			return c.SetFeature(feature)
		},
	})
}
