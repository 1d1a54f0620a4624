package models

// Providers disagree on field names, so webhook payloads are decoded into a
// flat map and each logical field is resolved by trying a short ordered list
// of known aliases. First present, non-empty value wins.

// InboundFieldAliases maps logical inbound (MO) fields to provider aliases.
var (
	InboundMessageIDAliases = []string{"msgID", "message_id", "id", "sid"}
	InboundFromAliases      = []string{"from", "msisdn", "sender", "from_number"}
	InboundToAliases        = []string{"shortcode", "longcode", "to", "recipient", "to_number"}
	InboundBodyAliases      = []string{"text", "body", "message", "content"}
	InboundTimestampAliases = []string{"received_at", "timestamp"}
)

// Delivery-notification (DN) field aliases.
var (
	DeliveryMessageIDAliases    = []string{"msgID", "message_id", "sid"}
	DeliveryMSISDNAliases       = []string{"msisdn", "phone", "to"}
	DeliveryStatusAliases       = []string{"status", "delivery_status"}
	DeliveryStatusDetailAliases = []string{"statusDetail", "status_detail", "description"}
)

// ResolveField returns the first alias present in the payload with a
// non-empty string value.
func ResolveField(payload map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// InboundWebhookResult is the JSON acknowledgment returned to providers that
// expect a structured response.
type InboundWebhookResult struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message"`
	SmsID        int64   `json:"sms_id,omitempty"`
	PlateNumber  *string `json:"plate_number,omitempty"`
	VehicleFound bool    `json:"vehicle_found"`
	Error        string  `json:"error,omitempty"`
}

// DeliveryWebhookResult is the JSON acknowledgment for delivery notifications.
// NotFound distinguishes an unknown provider message id from internal
// failures so the handler can answer 404 vs 500; it is not serialized.
type DeliveryWebhookResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	SmsID    int64  `json:"sms_id,omitempty"`
	Error    string `json:"error,omitempty"`
	NotFound bool   `json:"-"`
}
