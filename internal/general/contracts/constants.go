package contracts

// Exchanges
const (
	ExchangeNotifications = "dispatch_notifications"
)

// Queues
const (
	QueueWebhookJobs = "notifications_webhook"
	QueuePushJobs    = "notifications_push"
)

// Routing patterns
const (
	RouteWebhookPrefix = "notify.webhook." // {event}
	RoutePushPrefix    = "notify.push."    // {user_id}
)

// Customer-facing event names, carried both in webhook payloads and over
// the live route stream.
const (
	EventRouteLoaded       = "route.loaded"
	EventRouteSent         = "route.sent"
	EventRouteStarted      = "route.started"
	EventRouteCompleted    = "route.completed"
	EventStopStatusChanged = "stop.status_changed"
	EventStopInTransit     = "stop.in_transit"
	EventStopCompleted     = "stop.completed"
	EventStopFailed        = "stop.failed"
	EventStopSkipped       = "stop.skipped"
	EventStopApproaching   = "stop.approaching" // reserved; no producer emits it yet
	EventETAUpdated        = "eta.updated"
	EventDriverLocation    = "driver.location_updated"
)
