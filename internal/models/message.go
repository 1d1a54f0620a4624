package models

import (
	"time"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageType string

const (
	MessageTypeGeneral     MessageType = "general"
	MessageTypeJPJResponse MessageType = "jpj_response"
	MessageTypeJPJQuery    MessageType = "jpj_query"
)

type MessageStatus string

const (
	StatusReceived  MessageStatus = "received"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusProcessed MessageStatus = "processed"
	StatusFailed    MessageStatus = "failed"
	StatusPending   MessageStatus = "pending"
)

// SmsMessage is the durable log row for every message that crosses the
// gateway in either direction. ProviderMessageID is the natural key used to
// correlate delivery notifications and deduplicate webhook redeliveries.
type SmsMessage struct {
	ID                int64                `db:"id"`
	VehicleID         *int64               `db:"vehicle_id"`
	PlateNumber       *string              `db:"plate_number"`
	ProviderMessageID string               `db:"message_sid"`
	FromNumber        string               `db:"from_number"`
	ToNumber          string               `db:"to_number"`
	Direction         Direction            `db:"direction"`
	Body              string               `db:"message_body"`
	MessageType       MessageType          `db:"message_type"`
	Status            MessageStatus        `db:"status"`
	ParsedData        *ParsedViolationData `db:"parsed_data"`
	ReceivedAt        time.Time            `db:"received_at"`
	ProcessedAt       *time.Time           `db:"processed_at"`
	CreatedAt         time.Time            `db:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at"`
}

// ViolationRecord is one fine extracted from a JPJ response body.
//
// Date, Location and DueDate are synthesized placeholders: the SMS text does
// not reliably carry structured dates or locations, so downstream consumers
// must not treat them as authoritative.
type ViolationRecord struct {
	Type        string  `json:"type"`
	Date        string  `json:"date"`
	Location    string  `json:"location"`
	FineAmount  float64 `json:"fine_amount"`
	Status      string  `json:"status"`
	Reference   string  `json:"reference"`
	DueDate     string  `json:"due_date"`
	Description string  `json:"description"`
}

// ParsedViolationData is the structured extraction result stored alongside an
// inbound message. TotalFinesAmount always equals the sum of the individual
// violation fine amounts.
type ParsedViolationData struct {
	PlateNumber          *string           `json:"plate_number"`
	Violations           []ViolationRecord `json:"violations"`
	TotalFinesAmount     float64           `json:"total_fines_amount"`
	HasViolations        bool              `json:"has_violations"`
	HasPendingViolations bool              `json:"has_pending_violations"`
	RawMessage           string            `json:"raw_message,omitempty"`

	// Delivery metadata merged in by delivery-notification processing.
	DeliveryStatus       string `json:"delivery_status,omitempty"`
	DeliveryStatusDetail string `json:"delivery_status_detail,omitempty"`
	DeliveryUpdatedAt    string `json:"delivery_updated_at,omitempty"`
}

// Vehicle is the subset of the fleet record this subsystem reads and writes:
// the plate used for correlation plus the violation summary fields updated
// from parsed JPJ responses.
type Vehicle struct {
	ID                     int64             `db:"id"`
	PlateNumber            string            `db:"plate_number"`
	Make                   string            `db:"make"`
	Model                  string            `db:"model"`
	TrafficViolations      []ViolationRecord `db:"traffic_violations"`
	ViolationsLastChecked  *time.Time        `db:"violations_last_checked"`
	TotalViolationsCount   int               `db:"total_violations_count"`
	TotalFinesAmount       float64           `db:"total_fines_amount"`
	HasPendingViolations   bool              `db:"has_pending_violations"`
}
