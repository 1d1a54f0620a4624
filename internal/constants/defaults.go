package constants

// Default gateway configuration values
const (
	DefaultSendRetryAttempts = 3
	DefaultSendRetryDelaySec = 2
	DefaultHTTPTimeoutSec    = 30
	DefaultASCIIMaxLength    = 1071
	DefaultUnicodeMaxLength  = 1000
	DefaultJPJShortcode      = "15888"
	DefaultSenderID          = "CarRental"
)

// Token cache lifetimes. The bearer token issued by the provider lives for an
// hour; the cache TTL stays below that so a cached token is never served past
// expiry mid-request.
const (
	DefaultTokenLifetimeMin = 60
	DefaultTokenCacheMin    = 50
)

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default persistence values
const (
	DefaultRetentionDays         = 90
	DefaultCleanupIntervalHours  = 24
	DefaultDatabaseRetryAttempts = 3
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxMs          = 60000
)

// Webhook limits
const (
	MaxWebhookBodyBytes  = 64 * 1024
	MaxMessageIDLength   = 255
	MinPhoneNumberLength = 7
)
