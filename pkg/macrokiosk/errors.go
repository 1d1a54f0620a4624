package macrokiosk

import "fmt"

// Category buckets a provider error code by the contiguous ranges in the
// Bulk SMS API specification v4.1.
type Category string

const (
	CategorySuccess        Category = "success"
	CategoryAuthentication Category = "authentication"
	CategoryMessage        Category = "message"
	CategorySystem         Category = "system"
	CategoryAPI            Category = "api"
	CategoryUnknown        Category = "unknown"
)

// Classification is the result of mapping a provider error code.
type Classification struct {
	Code      int
	Message   string
	Category  Category
	Retryable bool
}

// Provider error codes per the Bulk SMS API specification v4.1.
var errorMessages = map[int]string{
	200: "Success - Message accepted for delivery",

	// Authentication errors (400-409)
	400: "Invalid username or password",
	401: "Account suspended",
	402: "Account expired",
	403: "IP address not allowed",
	404: "Invalid service ID",
	405: "Insufficient credit balance",
	406: "Invalid sender ID",
	407: "Service not subscribed",
	408: "Message quota exceeded",
	409: "Account locked due to security",

	// Message errors (410-419)
	410: "Invalid recipient number",
	411: "Message too long",
	412: "Invalid message content",
	413: "Invalid message type",
	414: "Invalid message encoding",
	415: "Duplicate message detected",
	416: "Message expired",
	417: "Invalid characters in message",
	418: "Message blocked by spam filter",
	419: "Message contains blacklisted keyword",

	// System errors (420-429)
	420: "System error - Please try again",
	421: "Database error",
	422: "Queue full - Retry later",
	423: "Gateway timeout",
	424: "Gateway unavailable",
	425: "Network error",
	426: "Service temporarily unavailable",
	427: "Rate limit exceeded",
	428: "Request timeout",
	429: "Too many requests",

	// API errors (430-435)
	430: "Invalid API request format",
	431: "Missing required parameter",
	432: "Invalid parameter value",
	433: "API version not supported",
	434: "Method not allowed",
	435: "JWT token invalid or expired",
}

// Explicit allowlist of transient codes. Deliberately not the whole system
// range: 421 (database error) and 427 (rate limit breach recorded by the
// provider against the account) are not safe to hammer.
var retryableCodes = map[int]bool{
	420: true,
	422: true,
	423: true,
	424: true,
	425: true,
	426: true,
	428: true,
	429: true,
}

// Classify maps a provider error code to its message, category and
// retryability. Unknown codes classify as CategoryUnknown, non-retryable,
// with the raw code embedded in the message for diagnostics. Pure function.
func Classify(code int) Classification {
	message, known := errorMessages[code]
	if !known {
		message = fmt.Sprintf("Unknown error code: %d", code)
	}

	return Classification{
		Code:      code,
		Message:   message,
		Category:  categoryOf(code),
		Retryable: retryableCodes[code],
	}
}

// IsSuccess reports whether the code indicates an accepted message.
func IsSuccess(code int) bool {
	return code == 200
}

// IsRetryable reports whether the code is on the transient allowlist.
func IsRetryable(code int) bool {
	return retryableCodes[code]
}

func categoryOf(code int) Category {
	switch {
	case code == 200:
		return CategorySuccess
	case code >= 400 && code <= 409:
		return CategoryAuthentication
	case code >= 410 && code <= 419:
		return CategoryMessage
	case code >= 420 && code <= 429:
		return CategorySystem
	case code >= 430 && code <= 435:
		return CategoryAPI
	default:
		return CategoryUnknown
	}
}
