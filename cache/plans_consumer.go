package cache

import (
	"context"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

func (c *Cache) StartPlansConsumer(ctx context.Context) error {
	return startGenericConsumer(ctx, c, ConsumerConfig[models.Plan]{
		Topic:     c.cdcTopic("plans"),
		ModelName: "plan",
		IsDeleted: func(plan *models.Plan) bool {
			return plan.DeletedAt.Valid
		},
		GetKey: func(plan *models.Plan) string {
			return c.buildPlanKey(plan.ID)
		},
		GetID: func(plan *models.Plan) string {
			return plan.ID
		},
		GetUpdatedAt: func(plan *models.Plan) int64 {
			return plan.UpdatedAt.UnixMilli()
		},
		GetCached: func(plan *models.Plan) utils.Result[*models.Plan] {
			return c.FetchPlan(plan.ID)
		},
		SetCache: func(plan *models.Plan) utils.Result[bool] {
			return c.SetPlan(plan)
		},
	})
}
