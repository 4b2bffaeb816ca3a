package webhook

import (
	"time"

	"dispatch/internal/general/contracts"
)

// Payload is the body of every outbound webhook.
type Payload struct {
	Event          string                 `json:"event"`
	Timestamp      time.Time              `json:"timestamp"`
	Route          contracts.RouteBrief   `json:"route"`
	Driver         *contracts.DriverBrief `json:"driver,omitempty"`
	Stop           *contracts.StopBrief   `json:"stop,omitempty"`
	RemainingStops []contracts.StopBrief  `json:"remainingStops,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// NewRouteEvent builds a route.started / route.completed payload.
func NewRouteEvent(event string, route contracts.RouteBrief, driver *contracts.DriverBrief, remaining []contracts.StopBrief) Payload {
	return Payload{
		Event:          event,
		Timestamp:      time.Now().UTC(),
		Route:          route,
		Driver:         driver,
		RemainingStops: remaining,
	}
}

// NewStopEvent builds a stop.in_transit / stop.completed / stop.failed /
// stop.skipped payload.
func NewStopEvent(event string, route contracts.RouteBrief, driver *contracts.DriverBrief, s contracts.StopBrief, remaining []contracts.StopBrief, metadata map[string]any) Payload {
	return Payload{
		Event:          event,
		Timestamp:      time.Now().UTC(),
		Route:          route,
		Driver:         driver,
		Stop:           &s,
		RemainingStops: remaining,
		Metadata:       metadata,
	}
}

// NewETAUpdated builds the eta.updated payload fired after recalculation.
func NewETAUpdated(route contracts.RouteBrief, driver *contracts.DriverBrief, remaining []contracts.StopBrief, reason string) Payload {
	return Payload{
		Event:          contracts.EventETAUpdated,
		Timestamp:      time.Now().UTC(),
		Route:          route,
		Driver:         driver,
		RemainingStops: remaining,
		Metadata:       map[string]any{"reason": reason},
	}
}

// Window renders the customer-facing arrival window around a frozen ETA.
// Both edges snap outward to 10-minute boundaries so quoted windows stay
// round and stable.
func Window(original time.Time, before, after time.Duration) (start, end time.Time) {
	start = floor10(original.Add(-before))
	end = ceil10(original.Add(after))
	return start, end
}

func floor10(t time.Time) time.Time {
	return t.UTC().Truncate(10 * time.Minute)
}

func ceil10(t time.Time) time.Time {
	f := floor10(t)
	if f.Equal(t.UTC()) {
		return f
	}
	return f.Add(10 * time.Minute)
}
