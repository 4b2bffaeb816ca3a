// Package service implements the route execution engine: optimization,
// the route state machine, ETA recalculation, and notification fan-out.
package service

import (
	"context"
	"encoding/json"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/settings"
	"dispatch/internal/domain/stop"
	"dispatch/internal/general/contracts"
	"dispatch/internal/general/logger"
	"dispatch/internal/general/rabbitmq"
	"dispatch/internal/live"
	"dispatch/internal/ports"
	"dispatch/internal/push"
	"dispatch/internal/travel"
	"dispatch/internal/webhook"

	"github.com/google/uuid"
)

const producerName = "dispatch-service"

// cheapProviderCutoff is the stop count above which the planner defaults to
// the cheap provider: matrix calls grow quadratically and blow past external
// batch limits.
const cheapProviderCutoff = 9

// Publisher is the outbound queue surface the service enqueues
// notification jobs on.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

type dispatchService struct {
	logger *logger.Logger
	uow    ports.UnitOfWork

	routes    ports.RouteRepository
	stops     ports.StopRepository
	addresses ports.AddressRepository
	depots    ports.DepotRepository
	users     ports.UserRepository
	payments  ports.PaymentRepository
	settings  ports.SettingsRepository
	tracking  ports.TrackingRepository

	cheap *travel.CheapProvider
	real  travel.Provider // nil when no routing API is configured

	broker     *live.Broker
	dispatcher *webhook.Dispatcher
	notifier   *push.Notifier
	pub        Publisher
	mq         *rabbitmq.Client
}

// Deps carries the dispatch service dependencies.
type Deps struct {
	Logger    *logger.Logger
	UoW       ports.UnitOfWork
	Routes    ports.RouteRepository
	Stops     ports.StopRepository
	Addresses ports.AddressRepository
	Depots    ports.DepotRepository
	Users     ports.UserRepository
	Payments  ports.PaymentRepository
	Settings  ports.SettingsRepository
	Tracking  ports.TrackingRepository

	Cheap *travel.CheapProvider
	Real  travel.Provider

	Broker     *live.Broker
	Dispatcher *webhook.Dispatcher
	Notifier   *push.Notifier
	Pub        Publisher
	MQ         *rabbitmq.Client
}

// NewDispatchService creates the dispatch service with the provided dependencies.
func NewDispatchService(d Deps) ports.DispatchService {
	return &dispatchService{
		logger:     d.Logger,
		uow:        d.UoW,
		routes:     d.Routes,
		stops:      d.Stops,
		addresses:  d.Addresses,
		depots:     d.Depots,
		users:      d.Users,
		payments:   d.Payments,
		settings:   d.Settings,
		tracking:   d.Tracking,
		cheap:      d.Cheap,
		real:       d.Real,
		broker:     d.Broker,
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		pub:        d.Pub,
		mq:         d.MQ,
	}
}

// etaProvider is the provider used outside optimization (recalc, in-transit
// refresh): the real one when configured, the cheap estimate otherwise.
func (svc *dispatchService) etaProvider() travel.Provider {
	if svc.real != nil {
		return svc.real
	}
	return svc.cheap
}

// ----- snapshot builders -----

func routeBrief(r *route.Route, stopCount int) contracts.RouteBrief {
	b := contracts.RouteBrief{
		RouteID:   r.ID,
		Name:      r.Name,
		Status:    r.Status.String(),
		StopCount: stopCount,
	}
	if r.AssignedDriverID != nil {
		b.DriverID = *r.AssignedDriverID
	}
	return b
}

// driverBrief loads the assigned driver's public snapshot, or nil.
func (svc *dispatchService) driverBrief(ctx context.Context, r *route.Route) *contracts.DriverBrief {
	if r.AssignedDriverID == nil {
		return nil
	}
	u, err := svc.users.GetByID(ctx, *r.AssignedDriverID)
	if err != nil || u == nil {
		return &contracts.DriverBrief{DriverID: *r.AssignedDriverID}
	}
	b := &contracts.DriverBrief{DriverID: u.ID, Email: u.Email}
	if u.Phone != nil {
		b.Phone = *u.Phone
	}
	return b
}

// stopBrief renders one stop with its customer-facing ETA window. Windows
// derive from the frozen original ETA so they never drift after route start.
func stopBrief(s *stop.Stop, addr *address.Address, notif settings.Notifications) contracts.StopBrief {
	b := contracts.StopBrief{
		StopID:        s.ID,
		RouteID:       s.RouteID,
		SequenceOrder: s.SequenceOrder,
		Status:        s.Status.String(),
	}
	if addr != nil {
		b.Address = addr.FullAddress
		if addr.CustomerName != nil {
			b.CustomerName = *addr.CustomerName
		}
	}
	if s.ExternalOrderID != nil {
		b.ExternalOrderID = *s.ExternalOrderID
	}
	if s.OriginalEstimatedArrival != nil {
		start, end := webhook.Window(*s.OriginalEstimatedArrival, notif.Before(), notif.After())
		b.ETAWindowStart = &start
		b.ETAWindowEnd = &end
	}
	return b
}

// remainingBriefs renders every open stop in sequence order.
func (svc *dispatchService) remainingBriefs(stops []*stop.Stop, addrs map[string]*address.Address, notif settings.Notifications) []contracts.StopBrief {
	var out []contracts.StopBrief
	for _, s := range stops {
		if !s.Open() {
			continue
		}
		out = append(out, stopBrief(s, addrs[s.AddressID], notif))
	}
	return out
}

// ----- notification fabric -----

// publishWebhookJob enqueues a signed delivery for the background consumer.
// Fire and forget: a broker hiccup is logged, never surfaced to the caller.
func (svc *dispatchService) publishWebhookJob(ctx context.Context, event string, routeID string, payload webhook.Payload) {
	w, err := svc.webhookSettings(ctx)
	if err != nil {
		svc.logger.Error(ctx, "webhook_settings_load_failed", "Failed to load webhook settings", err, nil)
		return
	}
	if !w.Configured() {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		svc.logger.Error(ctx, "webhook_payload_marshal_failed", "Failed to marshal webhook payload", err, nil)
		return
	}

	job := contracts.WebhookJob{
		Event:   event,
		RouteID: routeID,
		Payload: body,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	}
	raw, err := json.Marshal(job)
	if err != nil {
		svc.logger.Error(ctx, "webhook_job_marshal_failed", "Failed to marshal webhook job", err, nil)
		return
	}

	if err := svc.pub.Publish(contracts.ExchangeNotifications, contracts.RouteWebhookPrefix+event, raw); err != nil {
		svc.logger.Error(ctx, "webhook_job_publish_failed", "Failed to publish webhook job", err,
			map[string]any{"event": event, "route_id": routeID})
	}
}

// publishPushJob enqueues a push notification for the background consumer.
func (svc *dispatchService) publishPushJob(ctx context.Context, userID, event string, data map[string]string) {
	job := contracts.PushJob{
		UserID: userID,
		Event:  event,
		Data:   data,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      producerName,
			SentAt:        time.Now().UTC(),
		},
	}
	raw, err := json.Marshal(job)
	if err != nil {
		svc.logger.Error(ctx, "push_job_marshal_failed", "Failed to marshal push job", err, nil)
		return
	}

	if err := svc.pub.Publish(contracts.ExchangeNotifications, contracts.RoutePushPrefix+userID, raw); err != nil {
		svc.logger.Error(ctx, "push_job_publish_failed", "Failed to publish push job", err,
			map[string]any{"event": event, "user_id": userID})
	}
}

// webhookSettings loads the webhook config in its own read transaction.
func (svc *dispatchService) webhookSettings(ctx context.Context) (settings.Webhook, error) {
	var w settings.Webhook
	err := svc.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = svc.settings.GetWebhook(ctx)
		return err
	})
	return w, err
}

// notificationSettings loads the ETA window config, already inside a tx.
func (svc *dispatchService) notificationSettings(ctx context.Context) settings.Notifications {
	n, err := svc.settings.GetNotifications(ctx)
	if err != nil {
		svc.logger.Error(ctx, "notification_settings_load_failed", "Falling back to default ETA windows", err, nil)
		return settings.DefaultNotifications()
	}
	return n
}
