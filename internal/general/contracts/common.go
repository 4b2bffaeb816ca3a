package contracts

import "time"

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across consumers
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// RouteBrief is the route summary embedded in customer-facing events.
type RouteBrief struct {
	RouteID   string `json:"route_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	DriverID  string `json:"driver_id,omitempty"`
	StopCount int    `json:"stop_count,omitempty"`
}

// DriverBrief is the driver summary embedded in customer-facing events.
type DriverBrief struct {
	DriverID string `json:"driver_id"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// StopBrief is the stop summary embedded in customer-facing events.
type StopBrief struct {
	StopID          string     `json:"stop_id"`
	RouteID         string     `json:"route_id"`
	SequenceOrder   int        `json:"sequence_order"`
	Status          string     `json:"status"`
	Address         string     `json:"address,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	ExternalOrderID string     `json:"external_order_id,omitempty"`
	ETAWindowStart  *time.Time `json:"eta_window_start,omitempty"`
	ETAWindowEnd    *time.Time `json:"eta_window_end,omitempty"`
}
