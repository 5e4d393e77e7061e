package cache

import (
	"fmt"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

const featurePrefix = "feature"

func (c *Cache) buildFeatureKey(featureKey string) string {
	return fmt.Sprintf("%s:%s", featurePrefix, featureKey)
}

func (c *Cache) SetFeature(feature *models.Feature) utils.Result[bool] {
	return setJSON(c, c.buildFeatureKey(feature.Key), feature)
}

func (c *Cache) GetFeature(featureKey string) utils.Result[*models.Feature] {
	return getJSON[models.Feature](c, c.buildFeatureKey(featureKey))
}

func (c *Cache) LoadFeaturesSnapshot(store *models.ApiStore) utils.Result[int] {
	return LoadSnapshot(
		c,
		"features",
		func() ([]models.Feature, error) {
			result := store.FetchAllFeatures()
			if result.Failure() {
				return nil, result.Error()
			}
			return result.Value(), nil
		},
		func(feature *models.Feature) string {
			return c.buildFeatureKey(feature.Key)
		},
	)
}
