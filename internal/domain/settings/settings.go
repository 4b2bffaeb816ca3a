package settings

import "time"

// Well-known settings keys. Values are stored as opaque JSONB blobs keyed by these.
const (
	KeyWebhook       = "webhook"
	KeyNotifications = "notifications"
	KeyDelivery      = "delivery"
)

// Webhook configures the outbound customer-notification endpoint.
type Webhook struct {
	URL     string `json:"url,omitempty"`
	Enabled bool   `json:"enabled"`
	Secret  string `json:"secret,omitempty"`
}

// Configured reports whether webhook delivery should be attempted at all.
func (w Webhook) Configured() bool {
	return w.Enabled && w.URL != ""
}

// Notifications configures customer-facing ETA window rendering.
type Notifications struct {
	ETAWindowBeforeMin int `json:"etaWindowBefore"`
	ETAWindowAfterMin  int `json:"etaWindowAfter"`
}

// Before returns the window extent before the frozen ETA.
func (n Notifications) Before() time.Duration {
	return time.Duration(n.ETAWindowBeforeMin) * time.Minute
}

// After returns the window extent after the frozen ETA.
func (n Notifications) After() time.Duration {
	return time.Duration(n.ETAWindowAfterMin) * time.Minute
}

// DefaultNotifications is used when no row exists yet.
func DefaultNotifications() Notifications {
	return Notifications{ETAWindowBeforeMin: 15, ETAWindowAfterMin: 30}
}

// Delivery configures defaults applied to newly created stops.
type Delivery struct {
	RequireSignature bool `json:"requireSignature"`
	RequirePhoto     bool `json:"requirePhoto"`
	ProofEnabled     bool `json:"proofEnabled"`
	ServiceMinutes   int  `json:"serviceMinutes"`
}

// DefaultDelivery is used when no row exists yet.
func DefaultDelivery() Delivery {
	return Delivery{ServiceMinutes: 10}
}
