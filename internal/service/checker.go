package service

import (
	"context"
	"time"

	"jpjgate/internal/models"
	"jpjgate/internal/tracing"
	"jpjgate/internal/validation"
	"jpjgate/pkg/macrokiosk"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Checker initiates JPJ summons queries and exposes the per-plate message
// history. The query itself is fire-and-forget: JPJ's answer arrives later
// through the inbound webhook and is correlated by plate.
type Checker struct {
	gateway   macrokiosk.Client
	store     MessageStore
	shortcode string
	logger    *logrus.Logger
}

func NewChecker(gateway macrokiosk.Client, store MessageStore, shortcode string, logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{
		gateway:   gateway,
		store:     store,
		shortcode: shortcode,
		logger:    logger,
	}
}

// CheckTrafficViolations validates the plate, sends the summons query through
// the gateway, and logs the outbound message. A gateway-level failure is
// reported in the SendResult, not as an error; the message row records the
// failed status either way.
func (c *Checker) CheckTrafficViolations(ctx context.Context, plateNumber string) (*macrokiosk.SendResult, error) {
	plate, err := validation.ValidatePlateNumber(plateNumber)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "check_traffic_violations",
		attribute.String("plate_number", plate))
	defer span.End()

	c.logger.WithField("plate_number", plate).Info("Sending JPJ summons query")

	result, err := c.gateway.CheckTrafficViolations(ctx, plate, c.shortcode)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	c.logOutbound(ctx, plate, result)
	return result, nil
}

// GetViolationHistory returns every logged message for a plate, newest first.
func (c *Checker) GetViolationHistory(ctx context.Context, plateNumber string) ([]*models.SmsMessage, error) {
	plate, err := validation.ValidatePlateNumber(plateNumber)
	if err != nil {
		return nil, err
	}
	return c.store.GetMessagesByPlate(ctx, plate)
}

// GetVehicleSummary returns the stored vehicle record for a plate, or nil if
// the fleet does not contain it.
func (c *Checker) GetVehicleSummary(ctx context.Context, plateNumber string) (*models.Vehicle, error) {
	plate, err := validation.ValidatePlateNumber(plateNumber)
	if err != nil {
		return nil, err
	}
	return c.store.GetVehicleByPlate(ctx, plate)
}

func (c *Checker) logOutbound(ctx context.Context, plate string, result *macrokiosk.SendResult) {
	status := models.StatusSent
	if !result.Success {
		status = models.StatusFailed
	}

	providerID := result.ProviderMessageID
	if providerID == "" {
		// Failed sends have no provider id; the dedup column is UNIQUE so an
		// empty value cannot be reused.
		providerID = "outbound-" + uuid.NewString()
	}

	to := ""
	if len(result.Recipients) > 0 {
		to = result.Recipients[0]
	}

	msg := &models.SmsMessage{
		PlateNumber:       &plate,
		ProviderMessageID: providerID,
		FromNumber:        "",
		ToNumber:          to,
		Direction:         models.DirectionOutbound,
		Body:              "JPJ SAMAN " + plate,
		MessageType:       models.MessageTypeJPJQuery,
		Status:            status,
		ReceivedAt:        time.Now().UTC(),
	}

	if vehicle, err := c.store.GetVehicleByPlate(ctx, plate); err == nil && vehicle != nil {
		msg.VehicleID = &vehicle.ID
	}

	if _, err := c.store.SaveMessage(ctx, msg); err != nil {
		// The query was already sent; losing the log row is bad but not fatal.
		c.logger.WithError(err).WithField("plate_number", plate).Error("Failed to log outbound query")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"sms_id":     msg.ID,
		"message_id": providerID,
		"status":     status,
	}).Info("Outbound query logged")
}
