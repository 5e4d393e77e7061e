package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hireloop/entitlements-engine/engine"
	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

type mockAdmin struct {
	grantResult        utils.Result[*models.UsageRecord]
	changePlanResult   utils.Result[*models.Subscription]
	cancelResult       utils.Result[*models.Subscription]
	entitlementsResult utils.Result[[]engine.EntitlementInfo]
	resetResult        utils.Result[*models.UsageRecord]
	maintenanceResult  utils.Result[*engine.MaintenanceReport]

	grantHolder     models.Holder
	grantFeatureKey string
	grantAmount     int64
	changePlanSubID string
	changePlanID    string
	cancelSubID     string
	cancelImmediate bool
}

func (m *mockAdmin) GrantExtraAllowance(holder models.Holder, featureKey string, amount int64) utils.Result[*models.UsageRecord] {
	m.grantHolder = holder
	m.grantFeatureKey = featureKey
	m.grantAmount = amount
	return m.grantResult
}

func (m *mockAdmin) ChangePlan(subscriptionID string, newPlanID string) utils.Result[*models.Subscription] {
	m.changePlanSubID = subscriptionID
	m.changePlanID = newPlanID
	return m.changePlanResult
}

func (m *mockAdmin) CancelSubscription(subscriptionID string, immediate bool) utils.Result[*models.Subscription] {
	m.cancelSubID = subscriptionID
	m.cancelImmediate = immediate
	return m.cancelResult
}

func (m *mockAdmin) Entitlements(holder models.Holder) utils.Result[[]engine.EntitlementInfo] {
	return m.entitlementsResult
}

func (m *mockAdmin) ResetUsage(holder models.Holder, featureKey string) utils.Result[*models.UsageRecord] {
	return m.resetResult
}

func (m *mockAdmin) RunPeriodMaintenance(now time.Time) utils.Result[*engine.MaintenanceReport] {
	return m.maintenanceResult
}

func setupRouter(t *testing.T) (*mux.Router, *mockAdmin) {
	admin := &mockAdmin{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := mux.NewRouter()
	NewHandlers(admin, logger).RegisterRoutes(router)

	return router, admin
}

func doRequest(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestGrantExtraAllowanceHandler(t *testing.T) {
	t.Run("should grant and return the updated usage record", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.grantResult = utils.SuccessResult(&models.UsageRecord{
			FeatureKey:     "job_postings",
			Used:           3,
			ExtraAllowance: 5,
		})

		rec := doRequest(router, "POST", "/admin/allowances/grant", map[string]interface{}{
			"holder_type": "user",
			"holder_id":   "user123",
			"feature_key": "job_postings",
			"amount":      5,
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.HolderTypeUser, admin.grantHolder.Type)
		assert.Equal(t, "user123", admin.grantHolder.ID)
		assert.Equal(t, int64(5), admin.grantAmount)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, "job_postings", payload["feature_key"])
		assert.Equal(t, float64(5), payload["extra_allowance"])
	})

	t.Run("should reject an invalid holder type", func(t *testing.T) {
		router, _ := setupRouter(t)

		rec := doRequest(router, "POST", "/admin/allowances/grant", map[string]interface{}{
			"holder_type": "team",
			"holder_id":   "team123",
			"feature_key": "job_postings",
			"amount":      5,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject a missing feature key", func(t *testing.T) {
		router, _ := setupRouter(t)

		rec := doRequest(router, "POST", "/admin/allowances/grant", map[string]interface{}{
			"holder_type": "user",
			"holder_id":   "user123",
			"amount":      5,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject an invalid body", func(t *testing.T) {
		router, _ := setupRouter(t)

		req := httptest.NewRequest("POST", "/admin/allowances/grant", bytes.NewReader([]byte("not json")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should map a missing subscription to 404", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.grantResult = utils.FailedResult[*models.UsageRecord](gorm.ErrRecordNotFound).
			AddErrorDetails(string(engine.ReasonNoSubscription), "holder has no active subscription").
			NonCapturable().
			NonRetryable()

		rec := doRequest(router, "POST", "/admin/allowances/grant", map[string]interface{}{
			"holder_type": "user",
			"holder_id":   "user123",
			"feature_key": "job_postings",
			"amount":      5,
		})

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, string(engine.ReasonNoSubscription), payload["code"])
	})
}

func TestChangePlanHandler(t *testing.T) {
	t.Run("should change the plan", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.changePlanResult = utils.SuccessResult(&models.Subscription{
			ID:     "sub123",
			PlanID: "plan-pro",
			Status: models.SubscriptionStatusActive,
		})

		rec := doRequest(router, "POST", "/admin/subscriptions/sub123/change_plan", map[string]interface{}{
			"plan_id": "plan-pro",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sub123", admin.changePlanSubID)
		assert.Equal(t, "plan-pro", admin.changePlanID)
	})

	t.Run("should reject a missing plan id", func(t *testing.T) {
		router, _ := setupRouter(t)

		rec := doRequest(router, "POST", "/admin/subscriptions/sub123/change_plan", map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should map an unknown plan to 422", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.changePlanResult = utils.FailedResult[*models.Subscription](gorm.ErrRecordNotFound).
			AddErrorDetails(string(engine.ReasonInvalidPlan), "plan no-such-plan does not exist").
			NonCapturable().
			NonRetryable()

		rec := doRequest(router, "POST", "/admin/subscriptions/sub123/change_plan", map[string]interface{}{
			"plan_id": "no-such-plan",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("should map an unknown subscription to 404", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.changePlanResult = utils.FailedResult[*models.Subscription](gorm.ErrRecordNotFound).
			NonCapturable().
			NonRetryable()

		rec := doRequest(router, "POST", "/admin/subscriptions/unknown/change_plan", map[string]interface{}{
			"plan_id": "plan-pro",
		})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelSubscriptionHandler(t *testing.T) {
	t.Run("should cancel immediately", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.cancelResult = utils.SuccessResult(&models.Subscription{
			ID:     "sub123",
			Status: models.SubscriptionStatusCanceled,
		})

		rec := doRequest(router, "POST", "/admin/subscriptions/sub123/cancel", map[string]interface{}{
			"immediate": true,
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sub123", admin.cancelSubID)
		assert.True(t, admin.cancelImmediate)
	})

	t.Run("should default to a scheduled cancellation", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.cancelResult = utils.SuccessResult(&models.Subscription{
			ID:     "sub123",
			Status: models.SubscriptionStatusActive,
		})

		rec := doRequest(router, "POST", "/admin/subscriptions/sub123/cancel", map[string]interface{}{})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, admin.cancelImmediate)
	})
}

func TestEntitlementsHandler(t *testing.T) {
	t.Run("should list the holder's entitlements", func(t *testing.T) {
		router, admin := setupRouter(t)

		limit := int64(10)
		admin.entitlementsResult = utils.SuccessResult([]engine.EntitlementInfo{
			{FeatureKey: "job_postings", Kind: "quota", Enabled: true, Limit: &limit, Used: 3, Remaining: 7},
			{FeatureKey: "priority_support", Kind: "toggle", Enabled: true},
		})

		rec := doRequest(router, "GET", "/admin/entitlements?holder_type=user&holder_id=user123", nil)

		assert.Equal(t, http.StatusOK, rec.Code)

		var payload struct {
			Entitlements []engine.EntitlementInfo `json:"entitlements"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.Len(t, payload.Entitlements, 2)
		assert.Equal(t, "job_postings", payload.Entitlements[0].FeatureKey)
		assert.Equal(t, int64(10), *payload.Entitlements[0].Limit)
		assert.Nil(t, payload.Entitlements[1].Limit)
	})

	t.Run("should reject a missing holder", func(t *testing.T) {
		router, _ := setupRouter(t)

		rec := doRequest(router, "GET", "/admin/entitlements", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should surface an internal error as 500", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.entitlementsResult = utils.FailedResult[[]engine.EntitlementInfo](errors.New("connection refused"))

		rec := doRequest(router, "GET", "/admin/entitlements?holder_type=user&holder_id=user123", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestResetUsageHandler(t *testing.T) {
	t.Run("should reset usage", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.resetResult = utils.SuccessResult(&models.UsageRecord{
			FeatureKey:     "job_postings",
			Used:           0,
			ExtraAllowance: 5,
		})

		rec := doRequest(router, "POST", "/admin/usage/reset", map[string]interface{}{
			"holder_type": "org",
			"holder_id":   "org456",
			"feature_key": "job_postings",
		})

		assert.Equal(t, http.StatusOK, rec.Code)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, float64(0), payload["used"])
		assert.Equal(t, float64(5), payload["extra_allowance"])
	})
}

func TestRunMaintenanceHandler(t *testing.T) {
	t.Run("should report the maintenance counters", func(t *testing.T) {
		router, admin := setupRouter(t)
		admin.maintenanceResult = utils.SuccessResult(&engine.MaintenanceReport{
			CanceledSubscriptions: 2,
			ResetUsageRecords:     5,
		})

		rec := doRequest(router, "POST", "/admin/maintenance/run", nil)

		assert.Equal(t, http.StatusOK, rec.Code)

		var report engine.MaintenanceReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, int64(2), report.CanceledSubscriptions)
		assert.Equal(t, int64(5), report.ResetUsageRecords)
	})
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		name       string
		holderType string
		holderID   string
		ok         bool
	}{
		{name: "user", holderType: "user", holderID: "user123", ok: true},
		{name: "org", holderType: "org", holderID: "org456", ok: true},
		{name: "unknown type", holderType: "team", holderID: "team123", ok: false},
		{name: "empty id", holderType: "user", holderID: "", ok: false},
		{name: "empty type", holderType: "", holderID: "user123", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holder, ok := parseHolder(tt.holderType, tt.holderID)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.holderID, holder.ID)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":0", NewHandlers(&mockAdmin{}, logger), logger)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}
