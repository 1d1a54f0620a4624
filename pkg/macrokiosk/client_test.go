package macrokiosk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		ServiceID: "SID123",
		Username:  "user",
		Password:  "pass",
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"local format", "0123456789", "60123456789", false},
		{"international plus", "+60123456789", "60123456789", false},
		{"already normalized", "60123456789", "60123456789", false},
		{"with spaces", "012 345 6789", "60123456789", false},
		{"with dashes", "012-345-6789", "60123456789", false},
		{"bare subscriber", "123456789", "60123456789", false},
		{"shortcode", "15888", "15888", false},
		{"empty", "", "", true},
		{"letters", "01234abcde", "", true},
		{"too short", "+601", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)

			// Normalization is idempotent.
			again, err := NormalizePhoneNumber(got)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestDetectEncoding(t *testing.T) {
	assert.Equal(t, EncodingASCII, DetectEncoding("Hello JPJ SAMAN ABC1234"))
	assert.Equal(t, EncodingASCII, DetectEncoding(""))
	assert.Equal(t, EncodingUnicode, DetectEncoding("Saman kenderaan 车牌"))
	assert.Equal(t, EncodingUnicode, DetectEncoding("café"))
}

func TestEncodeUCS2Hex(t *testing.T) {
	assert.Equal(t, "0041", EncodeUCS2Hex("A"))
	assert.Equal(t, "00480069", EncodeUCS2Hex("Hi"))
	// CJK character above the BMP surrogate threshold stays a single unit.
	assert.Equal(t, "8F66", EncodeUCS2Hex("车"))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://example.com"}, nil, nil, testLogger())
	assert.Error(t, err)

	_, err = NewClient(Config{Username: "u", Password: "p"}, nil, nil, testLogger())
	assert.Error(t, err)
}

func TestNewClientJWTRequiresTokenManager(t *testing.T) {
	cfg := testConfig("http://example.com")
	cfg.UseJWT = true
	_, err := NewClient(cfg, nil, nil, testLogger())
	assert.Error(t, err)
}

func TestSendSuccess(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"msisdn":   r.PostFormValue("msisdn"),
			"sid":      r.PostFormValue("sid"),
			"fl":       r.PostFormValue("fl"),
			"type":     r.PostFormValue("type"),
			"msg":      r.PostFormValue("msg"),
			"username": r.PostFormValue("username"),
			"password": r.PostFormValue("password"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error_code":200,"message":"accepted","msgid":"MK-001"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.Send(context.Background(), []string{"0123456789"}, "JPJ SAMAN ABC1234", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "MK-001", result.ProviderMessageID)
	assert.Equal(t, 200, result.ErrorCode)
	assert.Equal(t, []string{"60123456789"}, result.Recipients)
	assert.Equal(t, EncodingASCII, result.Encoding)

	assert.Equal(t, "60123456789", gotForm["msisdn"])
	assert.Equal(t, "SID123", gotForm["sid"])
	assert.Equal(t, "0", gotForm["fl"])
	assert.Equal(t, "0", gotForm["type"])
	assert.Equal(t, "JPJ SAMAN ABC1234", gotForm["msg"])
	assert.Equal(t, "user", gotForm["username"])
	assert.Equal(t, "pass", gotForm["password"])
}

func TestSendUnicodeEncodesBody(t *testing.T) {
	var gotType, gotMsg string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotType = r.PostFormValue("type")
		gotMsg = r.PostFormValue("msg")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error_code":200,"msgid":"MK-002"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.Send(context.Background(), []string{"60123456789"}, "车", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, EncodingUnicode, result.Encoding)
	assert.Equal(t, "5", gotType)
	assert.Equal(t, "8F66", gotMsg)
}

func TestSendNonRetryableFailureStopsImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error_code":400,"message":"Invalid username or password"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.Send(context.Background(), []string{"60123456789"}, "hello", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 400, result.ErrorCode)
	assert.Equal(t, 1, attempts, "non-retryable code must not be retried")
}

func TestSendRetryableFailureThenSuccess(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts == 1 {
			w.Write([]byte(`{"error_code":422,"message":"Queue full - Retry later"}`))
			return
		}
		w.Write([]byte(`{"error_code":200,"msgid":"MK-003"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryDelaySec = 1
	client, err := NewClient(cfg, nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.Send(context.Background(), []string{"60123456789"}, "hello", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "MK-003", result.ProviderMessageID)
	assert.Equal(t, 2, attempts)
}

func TestSendTextResponseParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("200:MK-004 accepted"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.Send(context.Background(), []string{"60123456789"}, "hello", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 200, result.ErrorCode)
	assert.Equal(t, "MK-004 accepted", result.Message)
}

func TestSendValidation(t *testing.T) {
	client, err := NewClient(testConfig("http://example.com"), nil, nil, testLogger())
	require.NoError(t, err)

	_, err = client.Send(context.Background(), nil, "hello", "")
	assert.Error(t, err, "no recipients")

	_, err = client.Send(context.Background(), []string{"not-a-number"}, "hello", "")
	assert.Error(t, err, "invalid recipient")

	_, err = client.Send(context.Background(), []string{"60123456789"}, strings.Repeat("a", 1072), "")
	assert.Error(t, err, "ASCII body over limit")

	_, err = client.Send(context.Background(), []string{"60123456789"}, strings.Repeat("车", 1001), "")
	assert.Error(t, err, "Unicode body over limit")
}

func TestCheckTrafficViolationsBuildsQuery(t *testing.T) {
	var gotMsisdn, gotMsg string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotMsisdn = r.PostFormValue("msisdn")
		gotMsg = r.PostFormValue("msg")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error_code":200,"msgid":"MK-005"}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := client.CheckTrafficViolations(context.Background(), "abc1234", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "15888", gotMsisdn)
	assert.Equal(t, "JPJ SAMAN ABC1234", gotMsg)
}
