package contracts

// PushJob asks the push consumer to send one data-only notification.
// Routing key: "notify.push.{user_id}" on ExchangeNotifications.
type PushJob struct {
	UserID string            `json:"user_id"`
	Event  string            `json:"event"`
	Data   map[string]string `json:"data,omitempty"`
	Envelope
}
