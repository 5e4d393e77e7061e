package cache

import (
	"fmt"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

const planPrefix = "plan"

func (c *Cache) buildPlanKey(planID string) string {
	return fmt.Sprintf("%s:%s", planPrefix, planID)
}

func (c *Cache) SetPlan(plan *models.Plan) utils.Result[bool] {
	return setJSON(c, c.buildPlanKey(plan.ID), plan)
}

// FetchPlan reads a plan from the local cache; part of models.CatalogReader.
func (c *Cache) FetchPlan(planID string) utils.Result[*models.Plan] {
	return getJSON[models.Plan](c, c.buildPlanKey(planID))
}

func (c *Cache) LoadPlansSnapshot(store *models.ApiStore) utils.Result[int] {
	return LoadSnapshot(
		c,
		"plans",
		func() ([]models.Plan, error) {
			result := store.FetchAllPlans()
			if result.Failure() {
				return nil, result.Error()
			}
			return result.Value(), nil
		},
		func(plan *models.Plan) string {
			return c.buildPlanKey(plan.ID)
		},
	)
}
