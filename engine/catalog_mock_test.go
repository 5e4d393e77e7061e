package engine

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// MockCatalog is an in-memory models.CatalogReader for service tests.
type MockCatalog struct {
	Plans        map[string]*models.Plan
	Entitlements map[string]*models.Entitlement
	ReturnedErr  error
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		Plans:        make(map[string]*models.Plan),
		Entitlements: make(map[string]*models.Entitlement),
	}
}

func (mc *MockCatalog) AddPlan(plan *models.Plan) {
	mc.Plans[plan.ID] = plan
}

func (mc *MockCatalog) AddEntitlement(ent *models.Entitlement) {
	mc.Entitlements[entitlementKey(ent.PlanID, ent.FeatureKey)] = ent
}

func (mc *MockCatalog) FetchPlan(planID string) utils.Result[*models.Plan] {
	if mc.ReturnedErr != nil {
		return utils.FailedResult[*models.Plan](mc.ReturnedErr)
	}

	plan, ok := mc.Plans[planID]
	if !ok {
		return utils.FailedResult[*models.Plan](gorm.ErrRecordNotFound).NonCapturable().NonRetryable()
	}

	return utils.SuccessResult(plan)
}

func (mc *MockCatalog) FetchEntitlement(planID string, featureKey string) utils.Result[*models.Entitlement] {
	if mc.ReturnedErr != nil {
		return utils.FailedResult[*models.Entitlement](mc.ReturnedErr)
	}

	ent, ok := mc.Entitlements[entitlementKey(planID, featureKey)]
	if !ok {
		return utils.FailedResult[*models.Entitlement](gorm.ErrRecordNotFound).NonCapturable().NonRetryable()
	}

	return utils.SuccessResult(ent)
}

func (mc *MockCatalog) FetchPlanEntitlements(planID string) utils.Result[[]*models.Entitlement] {
	if mc.ReturnedErr != nil {
		return utils.FailedResult[[]*models.Entitlement](mc.ReturnedErr)
	}

	var entitlements []*models.Entitlement
	for _, ent := range mc.Entitlements {
		if ent.PlanID == planID {
			entitlements = append(entitlements, ent)
		}
	}

	sort.Slice(entitlements, func(i, j int) bool {
		return entitlements[i].FeatureKey < entitlements[j].FeatureKey
	})

	return utils.SuccessResult(entitlements)
}

func entitlementKey(planID, featureKey string) string {
	return fmt.Sprintf("%s/%s", planID, featureKey)
}
