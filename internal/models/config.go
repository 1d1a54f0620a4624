package models

// ConfigError indicates invalid or missing configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type GatewayConfig struct {
	BaseURL       string `json:"base_url"`
	SendEndpoint  string `json:"send_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	ServiceID     string `json:"service_id"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	APIKey        string `json:"api_key"`
	UseJWT        bool   `json:"use_jwt"`
	DefaultSender string `json:"default_sender"`
	JPJShortcode  string `json:"jpj_shortcode"`

	RetryAttempts    int `json:"retry_attempts"`
	RetryDelaySec    int `json:"retry_delay_sec"`
	TimeoutSec       int `json:"timeout_sec"`
	ASCIIMaxLength   int `json:"ascii_max_length"`
	UnicodeMaxLength int `json:"unicode_max_length"`
}

type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"read_timeout_sec"`
	WriteTimeoutSec int `json:"write_timeout_sec"`
	IdleTimeoutSec  int `json:"idle_timeout_sec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type Config struct {
	Gateway       GatewayConfig  `json:"gateway"`
	Server        ServerConfig   `json:"server"`
	Database      DatabaseConfig `json:"database"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retention_days"`
}
