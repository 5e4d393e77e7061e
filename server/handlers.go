package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hireloop/entitlements-engine/engine"
	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// AdminAPI is the slice of the engine the admin endpoints expose.
type AdminAPI interface {
	GrantExtraAllowance(holder models.Holder, featureKey string, amount int64) utils.Result[*models.UsageRecord]
	ChangePlan(subscriptionID string, newPlanID string) utils.Result[*models.Subscription]
	CancelSubscription(subscriptionID string, immediate bool) utils.Result[*models.Subscription]
	Entitlements(holder models.Holder) utils.Result[[]engine.EntitlementInfo]
	ResetUsage(holder models.Holder, featureKey string) utils.Result[*models.UsageRecord]
	RunPeriodMaintenance(now time.Time) utils.Result[*engine.MaintenanceReport]
}

// Handlers provides the HTTP handlers of the admin override API.
type Handlers struct {
	admin  AdminAPI
	logger *slog.Logger
}

func NewHandlers(admin AdminAPI, logger *slog.Logger) *Handlers {
	return &Handlers{
		admin:  admin,
		logger: logger,
	}
}

func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/allowances/grant", h.grantExtraAllowance).Methods("POST")
	router.HandleFunc("/admin/subscriptions/{id}/change_plan", h.changePlan).Methods("POST")
	router.HandleFunc("/admin/subscriptions/{id}/cancel", h.cancelSubscription).Methods("POST")
	router.HandleFunc("/admin/entitlements", h.entitlements).Methods("GET")
	router.HandleFunc("/admin/usage/reset", h.resetUsage).Methods("POST")
	router.HandleFunc("/admin/maintenance/run", h.runMaintenance).Methods("POST")
}

type grantRequest struct {
	HolderType string `json:"holder_type"`
	HolderID   string `json:"holder_id"`
	FeatureKey string `json:"feature_key"`
	Amount     int64  `json:"amount"`
}

func (h *Handlers) grantExtraAllowance(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	holder, ok := parseHolder(req.HolderType, req.HolderID)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "holder_type must be user or org and holder_id must be set")
		return
	}
	if req.FeatureKey == "" {
		writeError(w, http.StatusBadRequest, "", "feature_key is required")
		return
	}

	result := h.admin.GrantExtraAllowance(holder, req.FeatureKey, req.Amount)
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	rec := result.Value()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feature_key":     rec.FeatureKey,
		"used":            rec.Used,
		"extra_allowance": rec.ExtraAllowance,
	})
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (h *Handlers) changePlan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "", "plan_id is required")
		return
	}

	result := h.admin.ChangePlan(vars["id"], req.PlanID)
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	writeJSON(w, http.StatusOK, result.Value())
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (h *Handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	result := h.admin.CancelSubscription(vars["id"], req.Immediate)
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	writeJSON(w, http.StatusOK, result.Value())
}

func (h *Handlers) entitlements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	holder, ok := parseHolder(query.Get("holder_type"), query.Get("holder_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "", "holder_type must be user or org and holder_id must be set")
		return
	}

	result := h.admin.Entitlements(holder)
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entitlements": result.Value(),
	})
}

type resetRequest struct {
	HolderType string `json:"holder_type"`
	HolderID   string `json:"holder_id"`
	FeatureKey string `json:"feature_key"`
}

func (h *Handlers) resetUsage(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	holder, ok := parseHolder(req.HolderType, req.HolderID)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "holder_type must be user or org and holder_id must be set")
		return
	}
	if req.FeatureKey == "" {
		writeError(w, http.StatusBadRequest, "", "feature_key is required")
		return
	}

	result := h.admin.ResetUsage(holder, req.FeatureKey)
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	rec := result.Value()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feature_key":     rec.FeatureKey,
		"used":            rec.Used,
		"extra_allowance": rec.ExtraAllowance,
		"last_reset_at":   rec.LastResetAt,
	})
}

func (h *Handlers) runMaintenance(w http.ResponseWriter, r *http.Request) {
	result := h.admin.RunPeriodMaintenance(time.Now())
	if result.Failure() {
		h.writeResultError(w, result)
		return
	}

	writeJSON(w, http.StatusOK, result.Value())
}

func (h *Handlers) writeResultError(w http.ResponseWriter, result utils.AnyResult) {
	code := result.ErrorCode()

	status := http.StatusInternalServerError
	switch code {
	case string(engine.ReasonNoSubscription):
		status = http.StatusNotFound
	case string(engine.ReasonInvalidPlan):
		status = http.StatusUnprocessableEntity
	default:
		if result.Error() != nil && result.Error().Error() == models.ERROR_NOT_FOUND {
			status = http.StatusNotFound
		} else if !result.IsRetryable() && !result.IsCapturable() {
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("admin request failed", slog.String("error", result.ErrorMsg()))
		utils.CaptureErrorResult(result)
	}

	writeError(w, status, code, result.ErrorMsg())
}

func parseHolder(holderType, holderID string) (models.Holder, bool) {
	ht := models.HolderType(holderType)
	if holderID == "" || (ht != models.HolderTypeUser && ht != models.HolderTypeOrg) {
		return models.Holder{}, false
	}

	return models.Holder{Type: ht, ID: holderID}, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
