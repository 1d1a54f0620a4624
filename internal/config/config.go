package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"jpjgate/internal/constants"
	"jpjgate/internal/models"
)

var (
	ErrMissingGatewayURL = models.ConfigError{Message: "missing gateway base URL"}
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads the JSON config file, applies credential overrides from
// the environment, fills in defaults and validates the result. Credentials
// belong in the environment; values in the file are a development convenience.
func LoadConfig(path string) (*models.Config, error) {
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("invalid config path: %s", path)
	}

	file, err := os.ReadFile(path) // #nosec G304 - path checked above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.BaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Gateway.Username == "" || c.Gateway.Password == "" {
		return models.ConfigError{Message: "gateway username and password are required (set SMS_USERNAME and SMS_PASSWORD)"}
	}
	if c.Gateway.ServiceID == "" {
		return models.ConfigError{Message: "gateway service id is required (set SMS_SERVICE_ID)"}
	}
	if c.Gateway.UseJWT && c.Gateway.APIKey == "" {
		return models.ConfigError{Message: "JWT mode requires an API key (set SMS_API_KEY)"}
	}

	if c.Gateway.DefaultSender == "" {
		c.Gateway.DefaultSender = constants.DefaultSenderID
	}
	if c.Gateway.JPJShortcode == "" {
		c.Gateway.JPJShortcode = constants.DefaultJPJShortcode
	}
	if c.Gateway.RetryAttempts <= 0 {
		c.Gateway.RetryAttempts = constants.DefaultSendRetryAttempts
	}
	if c.Gateway.RetryDelaySec <= 0 {
		c.Gateway.RetryDelaySec = constants.DefaultSendRetryDelaySec
	}
	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if os.Getenv("JPJGATE_ENV") == "production" && c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production"}
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("SMS_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("SMS_USERNAME"); v != "" {
		c.Gateway.Username = v
	}
	if v := os.Getenv("SMS_PASSWORD"); v != "" {
		c.Gateway.Password = v
	}
	if v := os.Getenv("SMS_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("SMS_SERVICE_ID"); v != "" {
		c.Gateway.ServiceID = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
}
