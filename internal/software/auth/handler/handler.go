// Package handler adapts HTTP requests to the AuthService.
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dispatch/internal/general/jwt"
	"dispatch/internal/general/logger"
	"dispatch/internal/ports"
)

// AuthHTTPHandler adapts HTTP requests to the AuthService.
type AuthHTTPHandler struct {
	svc    ports.AuthService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewAuthHTTPHandler wires an HTTP handler around the AuthService.
func NewAuthHTTPHandler(svc ports.AuthService, logger *logger.Logger, auth *jwt.Manager) *AuthHTTPHandler {
	return &AuthHTTPHandler{svc: svc, logger: logger, auth: auth}
}

// RegisterRoutes mounts auth endpoints on the provided mux.
func (handler *AuthHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", handler.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", handler.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout",
		jwt.AuthMiddlewareFunc(handler.auth)(handler.handleLogout),
	)
}

type loginRequest struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	DeviceID   string  `json:"deviceId"`
	DeviceInfo *string `json:"deviceInfo"`
}

func (handler *AuthHTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := handler.svc.Login(ctx, ports.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

func (handler *AuthHTTPHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := handler.svc.Refresh(ctx, ports.RefreshInput{
		RefreshToken: req.RefreshToken,
		DeviceID:     req.DeviceID,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	LogoutAll    bool   `json:"logoutAll"`
}

func (handler *AuthHTTPHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := handler.svc.Logout(ctx, ports.LogoutInput{
		UserID:       claims.Subject,
		RefreshToken: req.RefreshToken,
		LogoutAll:    req.LogoutAll,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"loggedOut": true})
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

func (handler *AuthHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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
func (handler *AuthHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrValidation):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ports.ErrUnauthenticated), errors.Is(err, ports.ErrTokenInvalid):
		handler.httpError(ctx, w, http.StatusUnauthorized, "authentication failed", err)
	case errors.Is(err, ports.ErrForbidden):
		handler.httpError(ctx, w, http.StatusForbidden, "forbidden", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func (handler *AuthHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
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
func (handler *AuthHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
