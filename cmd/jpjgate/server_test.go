package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"jpjgate/internal/constants"
	"jpjgate/internal/database"
	"jpjgate/internal/models"
	"jpjgate/internal/parser"
	"jpjgate/internal/service"
	"jpjgate/pkg/macrokiosk"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	result *macrokiosk.SendResult
	err    error
}

func (g *stubGateway) Send(ctx context.Context, recipients []string, body, sender string) (*macrokiosk.SendResult, error) {
	return g.result, g.err
}

func (g *stubGateway) CheckTrafficViolations(ctx context.Context, plateNumber, jpjNumber string) (*macrokiosk.SendResult, error) {
	return g.result, g.err
}

func newTestServer(t *testing.T, gateway macrokiosk.Client) (*Server, *database.Database) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	if gateway == nil {
		gateway = &stubGateway{result: &macrokiosk.SendResult{Success: true, ProviderMessageID: "MK-test"}}
	}

	ingestor := service.NewIngestor(db, parser.New(), logger)
	checker := service.NewChecker(gateway, db, constants.DefaultJPJShortcode, logger)

	cfg := &models.ServerConfig{
		Port:            constants.DefaultServerPort,
		ReadTimeoutSec:  constants.DefaultServerReadTimeoutSec,
		WriteTimeoutSec: constants.DefaultServerWriteTimeoutSec,
		IdleTimeoutSec:  constants.DefaultServerIdleTimeoutSec,
	}
	return NewServer(cfg, ingestor, checker, logger), db
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestInboundWebhookProviderShapeGetsBareAck(t *testing.T) {
	server, db := newTestServer(t, nil)

	body := `{"msgID":"MK-1","msisdn":"15888","text":"JPJ SAMAN ABC1234 RM150"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/receive", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-1", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	stored, err := db.GetMessageByProviderID(context.Background(), "MK-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.MessageTypeJPJResponse, stored.MessageType)
}

func TestInboundWebhookJSONShapeGetsStructuredResponse(t *testing.T) {
	server, _ := newTestServer(t, nil)

	body := `{"message_id":"MK-2","from":"0123456789","to":"15888","text":"JPJ SAMAN ABC1234 RM150"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/receive", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result models.InboundWebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	require.NotNil(t, result.PlateNumber)
	assert.Equal(t, "ABC1234", *result.PlateNumber)
	assert.False(t, result.VehicleFound)
}

func TestInboundWebhookFormEncoded(t *testing.T) {
	server, db := newTestServer(t, nil)

	form := url.Values{}
	form.Set("msgID", "MK-3")
	form.Set("msisdn", "0123456789")
	form.Set("text", "JPJ: TIADA SAMAN untuk WXY99")

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/receive", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-1", rec.Body.String())

	stored, err := db.GetMessageByProviderID(context.Background(), "MK-3")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestInboundWebhookMalformedPayload(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/receive", strings.NewReader(";;;%%%"))
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeliveryWebhook(t *testing.T) {
	server, db := newTestServer(t, nil)

	_, err := db.SaveMessage(context.Background(), &models.SmsMessage{
		ProviderMessageID: "MK-4",
		Direction:         models.DirectionOutbound,
		Status:            models.StatusSent,
	})
	require.NoError(t, err)

	// Delivery notifications are answered with JSON even when the payload
	// carries the provider's own field names; the bare "-1" ack is reserved
	// for the message-receipt webhook.
	body := `{"msgID":"MK-4","status":"DELIVRD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/delivery", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var result models.DeliveryWebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotZero(t, result.SmsID)

	stored, err := db.GetMessageByProviderID(context.Background(), "MK-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.Status)
}

func TestDeliveryWebhookUnknownMessage(t *testing.T) {
	server, _ := newTestServer(t, nil)

	body := `{"message_id":"no-such-id","status":"DELIVRD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/delivery", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var result models.DeliveryWebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
}

func TestDeliveryWebhookMissingMessageID(t *testing.T) {
	server, _ := newTestServer(t, nil)

	body := `{"status":"DELIVRD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/delivery", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDeliveryWebhookStoreFailure(t *testing.T) {
	server, db := newTestServer(t, nil)
	require.NoError(t, db.Close())

	// With the store gone the lookup fails; that is an internal error, not a
	// missing message.
	body := `{"msgID":"MK-7","status":"DELIVRD"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sms/delivery", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckEndpoint(t *testing.T) {
	gateway := &stubGateway{result: &macrokiosk.SendResult{
		Success:           true,
		ProviderMessageID: "MK-5",
		ErrorCode:         200,
		Recipients:        []string{"15888"},
	}}
	server, db := newTestServer(t, gateway)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/check/ABC1234", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "MK-5", result["message_id"])

	logged, err := db.GetMessageByProviderID(context.Background(), "MK-5")
	require.NoError(t, err)
	require.NotNil(t, logged)
	assert.Equal(t, models.MessageTypeJPJQuery, logged.MessageType)
}

func TestCheckEndpointInvalidPlate(t *testing.T) {
	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/check/123456", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	server, db := newTestServer(t, nil)

	plate := "ABC1234"
	_, err := db.SaveMessage(context.Background(), &models.SmsMessage{
		ProviderMessageID: "MK-6",
		PlateNumber:       &plate,
		Direction:         models.DirectionInbound,
		Body:              "JPJ SAMAN ABC1234 RM150",
		MessageType:       models.MessageTypeJPJResponse,
		Status:            models.StatusProcessed,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/sms/plate/ABC1234", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, false, result["vehicle_found"])

	messages, ok := result["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 1)
}
