package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"dispatch/internal/general/logger"
	"dispatch/internal/general/metrics"
)

// Delivery headers.
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

const (
	attemptTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	backoffBase        = time.Second
)

// Result is the outcome of one Dispatch call, after all attempts.
type Result struct {
	OK         bool
	HTTPStatus int
	Attempts   int
	Err        error
}

// Dispatcher delivers signed webhook events with bounded retries. It holds no
// per-event state; one instance serves the whole process.
type Dispatcher struct {
	client *http.Client
	log    *logger.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: attemptTimeout},
		log:    log,
	}
}

// Dispatch POSTs body to url, signing it when secret is non-empty.
// 2xx succeeds. 4xx is terminal: the receiver rejected the event and a replay
// would not change its mind. Network errors and 5xx retry with exponential
// backoff up to maxAttempts total attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, url, event string, body []byte, secret string, maxAttempts int) Result {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res = d.attempt(ctx, url, event, body, secret)
		res.Attempts = attempt

		if res.OK {
			metrics.WebhookDeliveries.WithLabelValues(event, "ok").Inc()
			d.log.Info(ctx, "webhook_delivered", "Webhook delivered", map[string]any{
				"event":   event,
				"status":  res.HTTPStatus,
				"attempt": attempt,
			})
			return res
		}

		terminal := res.HTTPStatus >= 400 && res.HTTPStatus < 500
		if terminal || attempt == maxAttempts {
			outcome := "failed"
			if terminal {
				outcome = "rejected"
			}
			metrics.WebhookDeliveries.WithLabelValues(event, outcome).Inc()
			d.log.Error(ctx, "webhook_failed", "Webhook delivery failed", res.Err, map[string]any{
				"event":    event,
				"status":   res.HTTPStatus,
				"attempt":  attempt,
				"terminal": terminal,
			})
			return res
		}

		metrics.WebhookDeliveries.WithLabelValues(event, "retry").Inc()
		backoff := backoffBase << (attempt - 1)
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(backoff):
		}
	}
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, url, event string, body []byte, secret string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))
	if secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return Result{OK: true, HTTPStatus: resp.StatusCode}
	}
	return Result{
		HTTPStatus: resp.StatusCode,
		Err:        &statusError{code: resp.StatusCode},
	}
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return "webhook receiver returned " + strconv.Itoa(e.code)
}
