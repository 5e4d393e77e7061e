package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hireloop/entitlements-engine/config/kafka"
	"github.com/hireloop/entitlements-engine/models"
	"github.com/hireloop/entitlements-engine/utils"
)

// SubscriptionProvisionedMessage is published when a free-tier subscription
// is auto-provisioned. The notification worker turns it into a welcome
// email; delivery is best effort.
type SubscriptionProvisionedMessage struct {
	SubscriptionID     string    `json:"subscription_id"`
	HolderType         string    `json:"holder_type"`
	HolderID           string    `json:"holder_id"`
	PlanID             string    `json:"plan_id"`
	Product            string    `json:"product"`
	Tier               string    `json:"tier"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	ProvisionedAt      time.Time `json:"provisioned_at"`
}

type ProvisioningNotifier struct {
	producer kafka.MessageProducer
	logger   *slog.Logger
}

func NewProvisioningNotifier(producer kafka.MessageProducer, logger *slog.Logger) *ProvisioningNotifier {
	return &ProvisioningNotifier{
		producer: producer,
		logger:   logger,
	}
}

// NotifyProvisioned publishes the provisioning notification. Failures are
// logged and captured but never returned: a holder must not lose its new
// subscription because an email could not be queued.
func (n *ProvisioningNotifier) NotifyProvisioned(ctx context.Context, sub *models.Subscription, plan *models.Plan) {
	msg := SubscriptionProvisionedMessage{
		SubscriptionID:     sub.ID,
		HolderType:         string(sub.HolderType),
		HolderID:           sub.HolderID,
		PlanID:             plan.ID,
		Product:            string(plan.Product),
		Tier:               string(plan.Tier),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		ProvisionedAt:      time.Now(),
	}

	msgJson, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("error while marshaling provisioning notification", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return
	}

	pushed := n.producer.Produce(ctx, &kafka.ProducerMessage{
		Key:   []byte(sub.Holder().Key()),
		Value: msgJson,
	})

	if !pushed {
		n.logger.Error("error while pushing provisioning notification",
			slog.String("topic", n.producer.GetTopic()),
			slog.String("subscription_id", sub.ID),
		)
	}
}
