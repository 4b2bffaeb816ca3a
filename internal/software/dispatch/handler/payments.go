package handler

import (
	"crypto/subtle"
	"net/http"

	"dispatch/internal/ports"
)

type paymentVerifiedRequest struct {
	TransactionID string  `json:"transactionId"`
	CustomerRUT   string  `json:"customerRut"`
	Amount        float64 `json:"amount"`
	BankReference *string `json:"bankReference"`
	VerifiedBy    string  `json:"verifiedBy"`
	Rejected      bool    `json:"rejected"`
}

// handlePaymentVerified receives bank verification events. Auth is the shared
// X-Webhook-Secret header, not a JWT: the sender is a machine, not a user.
func (handler *DispatchHTTPHandler) handlePaymentVerified(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if handler.paymentSecret == "" {
		handler.httpError(ctx, w, http.StatusNotFound, "payment webhook is not configured", nil)
		return
	}
	got := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(handler.paymentSecret)) != 1 {
		handler.httpError(ctx, w, http.StatusUnauthorized, "invalid webhook secret", nil)
		return
	}

	var req paymentVerifiedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := handler.svc.HandlePaymentVerified(ctx, ports.PaymentVerifiedInput{
		TransactionID: req.TransactionID,
		CustomerRUT:   req.CustomerRUT,
		Amount:        req.Amount,
		BankReference: req.BankReference,
		VerifiedBy:    req.VerifiedBy,
		Rejected:      req.Rejected,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"processed": true})
}

// handleTestWebhook fires a synchronous connectivity test at the configured
// outbound endpoint and reports the receiver's verdict.
func (handler *DispatchHTTPHandler) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if err := handler.svc.TestWebhook(ctx); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"delivered": true})
}
