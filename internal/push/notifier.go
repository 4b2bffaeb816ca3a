// Package push wraps the external push provider. Delivery is best-effort:
// callers get a boolean, never an error, and state changes must not depend
// on the outcome.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"dispatch/internal/general/logger"
	"dispatch/internal/general/metrics"
	"dispatch/internal/ports"
)

// Notifier sends data-only messages to a user's registered device.
type Notifier struct {
	url    string
	apiKey string
	client *http.Client
	users  ports.UserRepository
	uow    ports.UnitOfWork
	log    *logger.Logger
}

// NewNotifier constructs a Notifier. An empty url disables sends.
func NewNotifier(url, apiKey string, users ports.UserRepository, uow ports.UnitOfWork, log *logger.Logger) *Notifier {
	return &Notifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		users:  users,
		uow:    uow,
		log:    log,
	}
}

// SendToUser delivers one notification. Title and body travel inside the data
// map so every receiver surfaces the message the same way. Returns whether
// the provider accepted the send; a user without a token returns false.
// A provider response naming a stale token clears the token on the user row.
func (n *Notifier) SendToUser(ctx context.Context, userID, title, body string, data map[string]string) bool {
	if n.url == "" {
		return false
	}

	var token string
	err := n.uow.WithinTx(ctx, func(ctx context.Context) error {
		u, err := n.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u != nil && u.PushToken != nil {
			token = *u.PushToken
		}
		return nil
	})
	if err != nil {
		n.log.Error(ctx, "push_token_lookup_failed", "Failed to load push token", err, map[string]any{"user_id": userID})
		metrics.PushSends.WithLabelValues("error").Inc()
		return false
	}
	if token == "" {
		metrics.PushSends.WithLabelValues("no_token").Inc()
		return false
	}

	payload := map[string]string{"title": title, "body": body}
	for k, v := range data {
		payload[k] = v
	}

	ok, stale := n.deliver(ctx, token, payload)
	if stale {
		n.clearToken(ctx, userID)
	}
	if ok {
		metrics.PushSends.WithLabelValues("ok").Inc()
	} else {
		metrics.PushSends.WithLabelValues("failed").Inc()
		n.log.Info(ctx, "push_send_failed", "Push provider did not accept the message", map[string]any{
			"user_id": userID,
			"stale":   stale,
		})
	}
	return ok
}

func (n *Notifier) deliver(ctx context.Context, token string, data map[string]string) (ok, stale bool) {
	raw, err := json.Marshal(map[string]any{"to": token, "data": data})
	if err != nil {
		return false, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		return false, false
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return false, true
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, strings.Contains(string(respBody), "NotRegistered")
	}
	return true, false
}

func (n *Notifier) clearToken(ctx context.Context, userID string) {
	err := n.uow.WithinTx(ctx, func(ctx context.Context) error {
		return n.users.SetPushToken(ctx, userID, nil)
	})
	if err != nil {
		n.log.Error(ctx, "push_token_clear_failed", "Failed to clear stale push token", err, map[string]any{"user_id": userID})
		return
	}
	n.log.Info(ctx, "push_token_cleared", "Cleared stale push token", map[string]any{"user_id": userID})
}
