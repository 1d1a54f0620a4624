package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jpjgate/internal/constants"
	apperrors "jpjgate/internal/errors"
	"jpjgate/internal/middleware"
	"jpjgate/internal/models"
	"jpjgate/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	ingestor *service.Ingestor
	checker  *service.Checker
	server   *http.Server
	cfg      *models.ServerConfig
}

func NewServer(cfg *models.ServerConfig, ingestor *service.Ingestor, checker *service.Checker, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		ingestor: ingestor,
		checker:  checker,
		cfg:      cfg,
	}

	s.router.Use(middleware.Observability(logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	webhooks := s.router.PathPrefix("/api/webhooks/sms").Subrouter()
	webhooks.HandleFunc("/receive", s.handleInbound()).Methods(http.MethodPost)
	webhooks.HandleFunc("/delivery", s.handleDelivery()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/sms").Subrouter()
	api.HandleFunc("/check/{plate}", s.handleCheck()).Methods(http.MethodPost)
	api.HandleFunc("/plate/{plate}", s.handleHistory()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// decodeWebhookPayload accepts JSON or form-encoded bodies; providers use
// both. The result is a flat map for alias-based field resolution.
func decodeWebhookPayload(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxWebhookBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	payload := make(map[string]interface{})
	if json.Unmarshal(body, &payload) == nil && len(payload) > 0 {
		return payload, nil
	}

	// Not JSON; fall back to form decoding.
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form payload: %w", err)
	}
	for k, vs := range values {
		if len(vs) > 0 {
			payload[k] = vs[0]
		}
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty or unparseable payload")
	}
	return payload, nil
}

func (s *Server) handleInbound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeWebhookPayload(r)
		if err != nil {
			s.logger.WithError(err).Warn("Rejecting malformed inbound webhook")
			writeJSON(w, http.StatusBadRequest, models.InboundWebhookResult{
				Success: false,
				Error:   "malformed payload",
			})
			return
		}

		providerShape := service.IsProviderPayload(payload)
		result := s.ingestor.ReceiveInbound(r.Context(), payload)

		// The provider's delivery loop expects a bare "-1" body; anything else
		// is treated as a failure and redelivered.
		if providerShape {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "-1")
			return
		}

		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, result)
	}
}

func (s *Server) handleDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeWebhookPayload(r)
		if err != nil {
			s.logger.WithError(err).Warn("Rejecting malformed delivery webhook")
			writeJSON(w, http.StatusBadRequest, models.DeliveryWebhookResult{
				Success: false,
				Error:   "malformed payload",
			})
			return
		}

		// Delivery notifications always get a JSON answer; the bare "-1" ack
		// applies to the message-receipt webhook only. Unknown ids are 404,
		// anything else that fails is an internal error.
		result := s.ingestor.ReceiveDelivery(r.Context(), payload)

		status := http.StatusOK
		if !result.Success {
			status = http.StatusInternalServerError
			if result.NotFound {
				status = http.StatusNotFound
			}
		}
		writeJSON(w, status, result)
	}
}

func (s *Server) handleCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := mux.Vars(r)["plate"]

		result, err := s.checker.CheckTrafficViolations(r.Context(), plate)
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":    result.Success,
			"message_id": result.ProviderMessageID,
			"error_code": result.ErrorCode,
			"message":    result.Message,
		})
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := mux.Vars(r)["plate"]

		vehicle, err := s.checker.GetVehicleSummary(r.Context(), plate)
		if err != nil {
			s.writeError(w, err)
			return
		}

		messages, err := s.checker.GetViolationHistory(r.Context(), plate)
		if err != nil {
			s.writeError(w, err)
			return
		}

		history := make([]map[string]interface{}, 0, len(messages))
		for _, msg := range messages {
			entry := map[string]interface{}{
				"sms_id":       msg.ID,
				"direction":    msg.Direction,
				"message_type": msg.MessageType,
				"status":       msg.Status,
				"body":         msg.Body,
				"received_at":  msg.ReceivedAt,
			}
			if msg.ParsedData != nil {
				entry["parsed_data"] = msg.ParsedData
			}
			history = append(history, entry)
		}

		response := map[string]interface{}{
			"vehicle_found": vehicle != nil,
			"messages":      history,
		}
		if vehicle != nil {
			response["vehicle"] = vehicle
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		s.logger.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   apperrors.GetUserMessage(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
