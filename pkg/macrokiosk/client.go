package macrokiosk

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"jpjgate/internal/constants"
	"jpjgate/internal/errors"
	"jpjgate/internal/retry"

	"github.com/sirupsen/logrus"
)

// Client is the outbound gateway interface consumed by services.
type Client interface {
	Send(ctx context.Context, recipients []string, body, sender string) (*SendResult, error)
	CheckTrafficViolations(ctx context.Context, plateNumber, jpjNumber string) (*SendResult, error)
}

// GatewayClient sends SMS through the provider's bulk HTTP API, in either
// basic (credentials in the form body) or JWT (bearer header) mode.
type GatewayClient struct {
	cfg     Config
	tokens  *TokenManager
	client  *http.Client
	retrier *retry.Retrier
	logger  *logrus.Logger
}

var textResponseRe = regexp.MustCompile(`(?m)^(\d+):(.+)$`)

type jsonSendResponse struct {
	ErrorCode json.Number `json:"error_code"`
	Message   string      `json:"message"`
	MsgID     string      `json:"msgid"`
}

func NewClient(cfg Config, tokens *TokenManager, httpClient *http.Client, logger *logrus.Logger) (*GatewayClient, error) {
	if cfg.Username == "" || cfg.Password == "" || cfg.ServiceID == "" {
		return nil, errors.NewConfigError("gateway",
			"gateway credentials are not configured (username, password and service_id are required)")
	}
	if cfg.UseJWT && tokens == nil {
		return nil, errors.NewConfigError("gateway", "JWT mode requires a token manager")
	}

	if cfg.SendEndpoint == "" {
		cfg.SendEndpoint = "/Send"
	}
	if cfg.DefaultSender == "" {
		cfg.DefaultSender = constants.DefaultSenderID
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = constants.DefaultSendRetryAttempts
	}
	if cfg.RetryDelaySec <= 0 {
		cfg.RetryDelaySec = constants.DefaultSendRetryDelaySec
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if cfg.ASCIIMaxLength <= 0 {
		cfg.ASCIIMaxLength = constants.DefaultASCIIMaxLength
	}
	if cfg.UnicodeMaxLength <= 0 {
		cfg.UnicodeMaxLength = constants.DefaultUnicodeMaxLength
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	retrier := retry.New(retry.Config{
		InitialDelay: time.Duration(cfg.RetryDelaySec) * time.Second,
		Multiplier:   1.0,
		MaxAttempts:  cfg.RetryAttempts,
	})

	return &GatewayClient{
		cfg:     cfg,
		tokens:  tokens,
		client:  httpClient,
		retrier: retrier,
		logger:  logger,
	}, nil
}

// Send delivers a message to one or more recipients. Validation failures
// (bad number, body over the encoding limit) return an error before any
// network attempt. Gateway-level failures exhaust the retry budget — stopping
// early on codes the taxonomy marks non-retryable — and come back as a
// failure SendResult with a nil error.
func (c *GatewayClient) Send(ctx context.Context, recipients []string, body, sender string) (*SendResult, error) {
	if len(recipients) == 0 {
		return nil, errors.NewValidationError("recipients", "", "at least one recipient is required")
	}

	normalized := make([]string, len(recipients))
	for i, r := range recipients {
		n, err := NormalizePhoneNumber(r)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	if sender == "" {
		sender = c.cfg.DefaultSender
	}

	encoding := DetectEncoding(body)
	if err := c.validateLength(body, encoding); err != nil {
		return nil, err
	}

	form := c.buildForm(normalized, body, sender, encoding)

	var result *SendResult
	var lastErr error

	attempt := 0
	err := c.retrier.RetryWithPredicate(ctx, func() error {
		attempt++
		c.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"to":       strings.Join(normalized, ","),
			"sender":   sender,
			"encoding": encoding,
		}).Info("Sending SMS")

		res, err := c.attempt(ctx, form)
		if err != nil {
			lastErr = err
			return err
		}

		result = res
		if res.Success {
			return nil
		}

		// Carry the provider code into the error so the predicate can
		// decide whether another attempt is worthwhile.
		classification := Classify(res.ErrorCode)
		gwErr := errors.New(errors.ErrCodeGatewayAPI, classification.Message).
			WithContext("error_code", res.ErrorCode).
			WithContext("category", string(classification.Category))
		gwErr.Retryable = classification.Retryable
		lastErr = gwErr
		return gwErr
	}, errors.IsRetryable)

	if err == nil && result != nil && result.Success {
		result.Recipients = normalized
		result.Encoding = encoding
		return result, nil
	}

	if result == nil {
		result = &SendResult{ErrorCode: -1}
		if lastErr != nil {
			result.Message = lastErr.Error()
		}
	}
	result.Success = false
	result.Recipients = normalized
	result.Encoding = encoding

	c.logger.WithFields(logrus.Fields{
		"to":         strings.Join(normalized, ","),
		"error_code": result.ErrorCode,
		"message":    result.Message,
	}).Warn("SMS send failed after retries")

	return result, nil
}

// CheckTrafficViolations sends a JPJ summons query for the given plate to the
// JPJ shortcode. The reply arrives asynchronously through the inbound
// webhook.
func (c *GatewayClient) CheckTrafficViolations(ctx context.Context, plateNumber, jpjNumber string) (*SendResult, error) {
	if jpjNumber == "" {
		jpjNumber = constants.DefaultJPJShortcode
	}

	body := "JPJ SAMAN " + strings.ToUpper(plateNumber)
	return c.Send(ctx, []string{jpjNumber}, body, "")
}

func (c *GatewayClient) attempt(ctx context.Context, form url.Values) (*SendResult, error) {
	endpoint := c.cfg.BaseURL + c.cfg.SendEndpoint

	// Copy so auth fields never leak between modes across attempts.
	data := url.Values{}
	for k, v := range form {
		data[k] = v
	}

	var bearer string
	if c.cfg.UseJWT {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return nil, errors.WrapRetryable(err, errors.ErrCodeAuthentication, "failed to obtain gateway token")
		}
		bearer = token
	} else {
		data.Set("username", c.cfg.Username)
		data.Set("password", c.cfg.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create send request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeGatewayAPI, "send request failed")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeGatewayAPI, "failed to read send response")
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.cfg.UseJWT {
			c.logger.Warn("Gateway rejected token, invalidating cache")
			c.tokens.Invalidate()
		}
		return nil, errors.WrapRetryable(
			fmt.Errorf("status %d", resp.StatusCode),
			errors.ErrCodeAuthentication, "send request rejected")
	}

	if resp.StatusCode >= 500 {
		return nil, errors.NewGatewayError(endpoint, resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	return c.parseResponse(resp, bodyBytes), nil
}

// parseResponse normalizes the two response shapes the send endpoint
// produces: JSON and a bare "code:message" text line.
func (c *GatewayClient) parseResponse(resp *http.Response, body []byte) *SendResult {
	result := &SendResult{
		ErrorCode:   resp.StatusCode,
		RawResponse: string(body),
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var parsed jsonSendResponse
		if err := json.Unmarshal(body, &parsed); err == nil {
			if code, err := parsed.ErrorCode.Int64(); err == nil {
				result.ErrorCode = int(code)
			}
			result.Message = parsed.Message
			result.ProviderMessageID = parsed.MsgID
		}
	} else if m := textResponseRe.FindStringSubmatch(string(body)); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			result.ErrorCode = code
		}
		result.Message = strings.TrimSpace(m[2])
	} else {
		result.Message = strings.TrimSpace(string(body))
	}

	result.Success = IsSuccess(result.ErrorCode)
	if result.Message == "" {
		result.Message = Classify(result.ErrorCode).Message
	}

	return result
}

func (c *GatewayClient) buildForm(recipients []string, body, sender string, encoding int) url.Values {
	form := url.Values{}
	form.Set("msisdn", strings.Join(recipients, ","))
	form.Set("sid", c.cfg.ServiceID)
	form.Set("fl", "0")
	form.Set("gwid", sender)
	form.Set("type", strconv.Itoa(encoding))

	if encoding == EncodingUnicode {
		form.Set("msg", EncodeUCS2Hex(body))
	} else {
		form.Set("msg", body)
	}

	return form
}

func (c *GatewayClient) validateLength(body string, encoding int) error {
	max := c.cfg.ASCIIMaxLength
	if encoding == EncodingUnicode {
		max = c.cfg.UnicodeMaxLength
	}

	length := len([]rune(body))
	if length > max {
		return errors.New(errors.ErrCodeMessageTooLong,
			fmt.Sprintf("message too long: %d characters (max %d)", length, max))
	}
	return nil
}

// DetectEncoding selects the 7-bit ASCII encoding when every character fits,
// otherwise the UCS2 wide encoding.
func DetectEncoding(body string) int {
	for _, r := range body {
		if r > 0x7F {
			return EncodingUnicode
		}
	}
	return EncodingASCII
}

// EncodeUCS2Hex encodes a message as hex UTF-16BE, the wire format the
// provider expects for Unicode messages.
func EncodeUCS2Hex(body string) string {
	units := utf16.Encode([]rune(body))
	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

var phoneStripRe = regexp.MustCompile(`[\s\-]`)

// NormalizePhoneNumber canonicalizes a Malaysian number to international
// format without separators or a leading plus: "0123456789" and
// "+60123456789" both normalize to "60123456789". Idempotent.
func NormalizePhoneNumber(phone string) (string, error) {
	cleaned := phoneStripRe.ReplaceAllString(phone, "")
	international := strings.HasPrefix(cleaned, "+")
	cleaned = strings.TrimPrefix(cleaned, "+")

	if cleaned == "" {
		return "", errors.NewValidationError("phone", phone, "phone number cannot be empty")
	}

	// Shortcodes (e.g. the JPJ query number) are at most six digits and are
	// never prefixed with a country code.
	if !international && len(cleaned) <= 6 && isDigits(cleaned) {
		return cleaned, nil
	}

	if !strings.HasPrefix(cleaned, "60") {
		if strings.HasPrefix(cleaned, "0") {
			cleaned = "6" + cleaned
		} else {
			cleaned = "60" + cleaned
		}
	}

	if len(cleaned) < constants.MinPhoneNumberLength {
		return "", errors.NewValidationError("phone", phone, "phone number too short")
	}
	if !isDigits(cleaned) {
		return "", errors.NewValidationError("phone", phone, "phone number must contain only digits")
	}

	return cleaned, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
