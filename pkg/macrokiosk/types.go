package macrokiosk

// Message encoding discriminators used by the send endpoint.
const (
	EncodingASCII   = 0
	EncodingUnicode = 5
)

// Config holds the provider account and endpoint settings.
type Config struct {
	BaseURL       string
	SendEndpoint  string
	TokenEndpoint string
	ServiceID     string
	Username      string
	Password      string
	APIKey        string
	UseJWT        bool
	DefaultSender string

	RetryAttempts    int
	RetryDelaySec    int
	TimeoutSec       int
	ASCIIMaxLength   int
	UnicodeMaxLength int
}

// SendResult is the outcome of a send attempt after retries. Ordinary gateway
// failures are reported here rather than as errors; only validation and
// configuration problems surface as errors from Send.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ErrorCode         int
	Message           string
	RawResponse       string
	Recipients        []string
	Encoding          int
}

type tokenResponse struct {
	Token string `json:"token"`
}
