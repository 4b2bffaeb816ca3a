// Package handler adapts HTTP, SSE and WebSocket traffic to the DispatchService.
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dispatch/internal/domain/user"
	"dispatch/internal/general/jwt"
	"dispatch/internal/general/logger"
	"dispatch/internal/live"
	"dispatch/internal/ports"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc    ports.DispatchService
	logger *logger.Logger
	auth   *jwt.Manager
	broker *live.Broker

	// shared secret for the inbound payment webhook; empty disables the endpoint
	paymentSecret string
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(svc ports.DispatchService, logger *logger.Logger, auth *jwt.Manager, broker *live.Broker, paymentSecret string) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{
		svc:           svc,
		logger:        logger,
		auth:          auth,
		broker:        broker,
		paymentSecret: paymentSecret,
	}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	staff := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin, user.RoleOperator)
	anyRole := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin, user.RoleOperator, user.RoleDriver)
	admin := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)

	// planning surface (back office)
	mux.HandleFunc("POST /api/v1/routes", staff(handler.handleCreateRoute))
	mux.HandleFunc("POST /api/v1/routes/import", staff(handler.handleImportRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/reorder", staff(handler.handleReorderStops))
	mux.HandleFunc("POST /api/v1/routes/{id}/optimize", staff(handler.handleOptimize))
	mux.HandleFunc("POST /api/v1/routes/{id}/send", staff(handler.handleSendRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/unsend", staff(handler.handleUnsendRoute))
	mux.HandleFunc("DELETE /api/v1/routes/{id}", staff(handler.handleDeleteRoute))

	// execution surface (driver app, but operators can drive it too)
	mux.HandleFunc("POST /api/v1/routes/{id}/start", anyRole(handler.handleStartRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/pause", anyRole(handler.handlePauseRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/resume", anyRole(handler.handleResumeRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/complete", anyRole(handler.handleCompleteRoute))
	mux.HandleFunc("POST /api/v1/routes/{id}/location", anyRole(handler.handleLocation))
	mux.HandleFunc("POST /api/v1/routes/{id}/stops/{stopId}/in-transit", anyRole(handler.handleStopInTransit))
	mux.HandleFunc("POST /api/v1/routes/{id}/stops/{stopId}/complete", anyRole(handler.handleCompleteStop))

	// live streams
	mux.HandleFunc("GET /api/v1/routes/{id}/events", anyRole(handler.handleEvents))
	mux.HandleFunc("GET /api/v1/routes/{id}/ws", anyRole(handler.handleLocationWS))

	// integrations
	mux.HandleFunc("POST /api/v1/payments/webhooks/verified", handler.handlePaymentVerified)
	mux.HandleFunc("POST /api/v1/webhooks/test", admin(handler.handleTestWebhook))
}

// ----- helpers -----

// decodeJSON strictly decodes a bounded JSON body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(envelope{Success: true, Data: data})
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// serviceError maps service-boundary error kinds to HTTP statuses.
func (handler *DispatchHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrValidation):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ports.ErrUnauthenticated), errors.Is(err, ports.ErrTokenInvalid):
		handler.httpError(ctx, w, http.StatusUnauthorized, "authentication failed", err)
	case errors.Is(err, ports.ErrForbidden):
		handler.httpError(ctx, w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, ports.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, ports.ErrConflict):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, ports.ErrProviderUnavailable):
		handler.httpError(ctx, w, http.StatusBadGateway, err.Error(), err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	buf, _ := json.Marshal(envelope{Success: false, Error: msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
