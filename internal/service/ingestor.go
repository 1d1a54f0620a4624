package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jpjgate/internal/constants"
	"jpjgate/internal/models"
	"jpjgate/internal/parser"
	"jpjgate/internal/tracing"
	"jpjgate/pkg/macrokiosk"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MessageStore is the persistence surface the services need. *database.Database
// satisfies it; tests substitute mocks.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.SmsMessage) (bool, error)
	GetMessageByProviderID(ctx context.Context, providerID string) (*models.SmsMessage, error)
	UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) error
	UpdateMessageDelivery(ctx context.Context, id int64, status models.MessageStatus, parsed *models.ParsedViolationData) error
	GetVehicleByPlate(ctx context.Context, plateNumber string) (*models.Vehicle, error)
	UpdateVehicleViolations(ctx context.Context, vehicleID int64, parsed *models.ParsedViolationData) error
	GetMessagesByPlate(ctx context.Context, plateNumber string) ([]*models.SmsMessage, error)
	CleanupOldMessages(retentionDays int) error
}

// Ingestor turns raw webhook payloads into persisted, parsed message rows and
// keeps vehicle violation summaries current.
type Ingestor struct {
	store  MessageStore
	parser *parser.Parser
	logger *logrus.Logger
}

func NewIngestor(store MessageStore, p *parser.Parser, logger *logrus.Logger) *Ingestor {
	if p == nil {
		p = parser.New()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{store: store, parser: p, logger: logger}
}

// IsProviderPayload reports whether the payload carries the provider's own
// field names. Such callers expect a bare "-1" plain-text acknowledgment
// instead of JSON.
func IsProviderPayload(payload map[string]interface{}) bool {
	_, hasMsgID := payload["msgID"]
	_, hasMSISDN := payload["msisdn"]
	return hasMsgID || hasMSISDN
}

// ReceiveInbound processes an inbound (MO) webhook: resolve fields, classify
// and parse the body, correlate to a vehicle by plate, and persist. Duplicate
// deliveries of the same provider message id are acknowledged without
// side effects.
func (in *Ingestor) ReceiveInbound(ctx context.Context, payload map[string]interface{}) *models.InboundWebhookResult {
	ctx, span := tracing.StartSpan(ctx, "ingest_inbound_sms")
	defer span.End()

	body := models.ResolveField(payload, models.InboundBodyAliases)
	if body == "" {
		return &models.InboundWebhookResult{
			Success: false,
			Error:   "message body is required",
		}
	}

	providerID := models.ResolveField(payload, models.InboundMessageIDAliases)
	if len(providerID) > constants.MaxMessageIDLength {
		return &models.InboundWebhookResult{
			Success: false,
			Error:   "message id exceeds maximum length",
		}
	}
	if providerID == "" {
		// Some providers omit the message id on MO traffic. Synthesize one so
		// the dedup key is always populated; redeliveries without an id cannot
		// be deduplicated.
		providerID = "inbound-" + uuid.NewString()
	}

	from := models.ResolveField(payload, models.InboundFromAliases)
	if normalized, err := macrokiosk.NormalizePhoneNumber(from); err == nil {
		from = normalized
	}
	to := models.ResolveField(payload, models.InboundToAliases)
	receivedAt := in.resolveTimestamp(payload)

	// Every inbound body is parsed, whatever its classification: plate
	// extraction and vehicle correlation apply to general traffic too. The
	// classification only gates the vehicle-summary update below.
	messageType := in.parser.Classify(body)
	parsed := in.parser.Parse(body)

	var plate *string
	if parsed.PlateNumber != nil {
		plate = parsed.PlateNumber
	}

	var vehicle *models.Vehicle
	if plate != nil {
		v, err := in.store.GetVehicleByPlate(ctx, *plate)
		if err != nil {
			in.logger.WithError(err).WithField("plate_number", *plate).Error("Vehicle lookup failed")
		} else {
			vehicle = v
		}
	}

	msg := &models.SmsMessage{
		PlateNumber:       plate,
		ProviderMessageID: providerID,
		FromNumber:        from,
		ToNumber:          to,
		Direction:         models.DirectionInbound,
		Body:              body,
		MessageType:       messageType,
		Status:            models.StatusReceived,
		ParsedData:        parsed,
		ReceivedAt:        receivedAt,
	}
	if vehicle != nil {
		msg.VehicleID = &vehicle.ID
	}

	created, err := in.store.SaveMessage(ctx, msg)
	if err != nil {
		in.logger.WithError(err).Error("Failed to save inbound message")
		tracing.RecordError(ctx, err)
		return &models.InboundWebhookResult{
			Success: false,
			Error:   "failed to persist message",
		}
	}

	tracing.AddSpanAttributes(ctx,
		attribute.String("message.type", string(messageType)),
		attribute.Bool("message.duplicate", !created),
	)

	if !created {
		in.logger.WithFields(logrus.Fields{
			"message_id": providerID,
			"sms_id":     msg.ID,
		}).Info("Duplicate inbound message ignored")
		return &models.InboundWebhookResult{
			Success:      true,
			Message:      "duplicate message ignored",
			SmsID:        msg.ID,
			PlateNumber:  plate,
			VehicleFound: vehicle != nil,
		}
	}

	// Rows persist at received. Only a traffic-authority response matched to
	// a known vehicle advances: processed once its summary update lands,
	// failed when that update errors. General messages and unmatched
	// responses stay received.
	status := models.StatusReceived
	if messageType == models.MessageTypeJPJResponse && vehicle != nil {
		status = models.StatusProcessed
		if err := in.store.UpdateVehicleViolations(ctx, vehicle.ID, parsed); err != nil {
			in.logger.WithError(err).WithField("vehicle_id", vehicle.ID).Error("Failed to update vehicle violations")
			status = models.StatusFailed
		}
		if err := in.store.UpdateMessageStatus(ctx, msg.ID, status); err != nil {
			in.logger.WithError(err).WithField("sms_id", msg.ID).Error("Failed to update message status")
		}
	}

	fields := logrus.Fields{
		"sms_id":        msg.ID,
		"message_type":  messageType,
		"status":        status,
		"vehicle_found": vehicle != nil,
	}
	if plate != nil {
		fields["plate_number"] = *plate
	}
	in.logger.WithFields(fields).Info("Inbound message processed")

	return &models.InboundWebhookResult{
		Success:      true,
		Message:      "message processed",
		SmsID:        msg.ID,
		PlateNumber:  plate,
		VehicleFound: vehicle != nil,
	}
}

// Provider delivery states, mapped onto our message statuses. Unknown states
// stay pending so a later, final notification can still resolve them.
var deliveryStatusMap = map[string]models.MessageStatus{
	"DELIVRD": models.StatusDelivered,
	"EXPIRED": models.StatusFailed,
	"DELETED": models.StatusFailed,
	"UNDELIV": models.StatusFailed,
	"REJECTD": models.StatusFailed,
	"ACCEPTD": models.StatusSent,
	"UNKNOWN": models.StatusPending,
}

// MapDeliveryStatus translates a provider delivery state into a message
// status. Unrecognized states map to pending.
func MapDeliveryStatus(providerStatus string) models.MessageStatus {
	if status, ok := deliveryStatusMap[strings.ToUpper(strings.TrimSpace(providerStatus))]; ok {
		return status
	}
	return models.StatusPending
}

// ReceiveDelivery processes a delivery notification (DN) for a previously sent
// message. Re-applying the same notification is harmless.
func (in *Ingestor) ReceiveDelivery(ctx context.Context, payload map[string]interface{}) *models.DeliveryWebhookResult {
	ctx, span := tracing.StartSpan(ctx, "ingest_delivery_notification")
	defer span.End()

	providerID := models.ResolveField(payload, models.DeliveryMessageIDAliases)
	if providerID == "" {
		return &models.DeliveryWebhookResult{
			Success: false,
			Error:   "message id is required",
		}
	}
	if len(providerID) > constants.MaxMessageIDLength {
		return &models.DeliveryWebhookResult{
			Success: false,
			Error:   "message id exceeds maximum length",
		}
	}

	msg, err := in.store.GetMessageByProviderID(ctx, providerID)
	if err != nil {
		in.logger.WithError(err).WithField("message_id", providerID).Error("Delivery lookup failed")
		tracing.RecordError(ctx, err)
		return &models.DeliveryWebhookResult{
			Success: false,
			Error:   "failed to look up message",
		}
	}
	if msg == nil {
		in.logger.WithField("message_id", providerID).Warn("Delivery notification for unknown message")
		return &models.DeliveryWebhookResult{
			Success:  false,
			NotFound: true,
			Error:    fmt.Sprintf("no message found with id %s", providerID),
		}
	}

	providerStatus := models.ResolveField(payload, models.DeliveryStatusAliases)
	status := MapDeliveryStatus(providerStatus)

	parsed := msg.ParsedData
	if parsed == nil {
		parsed = &models.ParsedViolationData{}
	}
	parsed.DeliveryStatus = providerStatus
	parsed.DeliveryStatusDetail = models.ResolveField(payload, models.DeliveryStatusDetailAliases)
	parsed.DeliveryUpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := in.store.UpdateMessageDelivery(ctx, msg.ID, status, parsed); err != nil {
		in.logger.WithError(err).WithField("sms_id", msg.ID).Error("Failed to record delivery status")
		tracing.RecordError(ctx, err)
		return &models.DeliveryWebhookResult{
			Success: false,
			SmsID:   msg.ID,
			Error:   "failed to record delivery status",
		}
	}

	in.logger.WithFields(logrus.Fields{
		"sms_id":          msg.ID,
		"message_id":      providerID,
		"provider_status": providerStatus,
		"status":          status,
	}).Info("Delivery status recorded")

	return &models.DeliveryWebhookResult{
		Success: true,
		Message: fmt.Sprintf("status updated to %s", status),
		SmsID:   msg.ID,
	}
}

func (in *Ingestor) resolveTimestamp(payload map[string]interface{}) time.Time {
	raw := models.ResolveField(payload, models.InboundTimestampAliases)
	if raw == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	in.logger.WithField("timestamp", raw).Debug("Unparseable webhook timestamp, using current time")
	return time.Now().UTC()
}
