package cache

import (
	"fmt"
	"sort"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

const entitlementPrefix = "entitlement"

func (c *Cache) buildEntitlementKey(planID, featureKey string) string {
	return fmt.Sprintf("%s:%s:%s", entitlementPrefix, planID, featureKey)
}

func (c *Cache) buildEntitlementPlanPrefix(planID string) string {
	return fmt.Sprintf("%s:%s:", entitlementPrefix, planID)
}

func (c *Cache) SetFeatureEntitlement(fe *models.FeatureEntitlement) utils.Result[bool] {
	return setJSON(c, c.buildEntitlementKey(fe.PlanID, fe.FeatureKey), fe)
}

func (c *Cache) GetFeatureEntitlement(planID, featureKey string) utils.Result[*models.FeatureEntitlement] {
	return getJSON[models.FeatureEntitlement](c, c.buildEntitlementKey(planID, featureKey))
}

// FetchEntitlement composes the cached entitlement row with its feature;
// part of models.CatalogReader.
func (c *Cache) FetchEntitlement(planID string, featureKey string) utils.Result[*models.Entitlement] {
	feResult := c.GetFeatureEntitlement(planID, featureKey)
	if feResult.Failure() {
		return utils.FailedResult[*models.Entitlement](feResult.Error()).
			NonCapturable().
			NonRetryable()
	}

	featureResult := c.GetFeature(featureKey)
	if featureResult.Failure() {
		return utils.FailedResult[*models.Entitlement](featureResult.Error()).
			NonCapturable().
			NonRetryable()
	}

	return utils.SuccessResult(models.NewEntitlement(featureResult.Value(), feResult.Value()))
}

// FetchPlanEntitlements returns every entitlement of a plan, ordered by
// feature key; part of models.CatalogReader. Entitlement rows whose feature
// has not reached the cache yet are skipped rather than failing the whole
// listing.
func (c *Cache) FetchPlanEntitlements(planID string) utils.Result[[]*models.Entitlement] {
	rowsResult := searchJSON[models.FeatureEntitlement](c, c.buildEntitlementPlanPrefix(planID))
	if rowsResult.Failure() {
		return utils.FailedResult[[]*models.Entitlement](rowsResult.Error())
	}

	entitlements := make([]*models.Entitlement, 0, len(rowsResult.Value()))
	for _, fe := range rowsResult.Value() {
		featureResult := c.GetFeature(fe.FeatureKey)
		if featureResult.Failure() {
			continue
		}
		entitlements = append(entitlements, models.NewEntitlement(featureResult.Value(), fe))
	}

	sort.Slice(entitlements, func(i, j int) bool {
		return entitlements[i].FeatureKey < entitlements[j].FeatureKey
	})

	return utils.SuccessResult(entitlements)
}

func (c *Cache) LoadFeatureEntitlementsSnapshot(store *models.ApiStore) utils.Result[int] {
	return LoadSnapshot(
		c,
		"feature_entitlements",
		func() ([]models.FeatureEntitlement, error) {
			result := store.FetchAllFeatureEntitlements()
			if result.Failure() {
				return nil, result.Error()
			}
			return result.Value(), nil
		},
		func(fe *models.FeatureEntitlement) string {
			return c.buildEntitlementKey(fe.PlanID, fe.FeatureKey)
		},
	)
}
