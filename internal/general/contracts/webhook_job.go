package contracts

import "encoding/json"

// WebhookJob asks the webhook consumer to deliver one signed event.
// Routing key: "notify.webhook.{event}" on ExchangeNotifications.
// Payload is the exact JSON body to sign and POST; the producer builds it so
// retries never observe newer state than the event they announce.
type WebhookJob struct {
	Event   string          `json:"event"`
	RouteID string          `json:"route_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
	Envelope
}
