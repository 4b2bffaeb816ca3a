package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/settings"
	"dispatch/internal/domain/stop"
	"dispatch/internal/domain/user"
	"dispatch/internal/general/contracts"
	"dispatch/internal/general/logger"
	"dispatch/internal/live"
	"dispatch/internal/ports"
	"dispatch/internal/travel"

	"github.com/stretchr/testify/require"
)

// ----- in-memory fakes -----

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memRoutes struct {
	mu   sync.Mutex
	rows map[string]*route.Route
}

func (m *memRoutes) Create(ctx context.Context, r *route.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *memRoutes) GetByID(ctx context.Context, id string) (*route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func (m *memRoutes) GetByIDForUpdate(ctx context.Context, id string) (*route.Route, error) {
	return m.GetByID(ctx, id)
}

func (m *memRoutes) GetActiveForDriver(ctx context.Context, driverID string) (*route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.AssignedDriverID == nil || *r.AssignedDriverID != driverID {
			continue
		}
		if r.Status == route.StatusInProgress || r.Status == route.StatusPaused {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memRoutes) Save(ctx context.Context, r *route.Route) error {
	return m.Create(ctx, r)
}

func (m *memRoutes) UpdateDriverLocation(ctx context.Context, routeID string, p geo.Point, heading, speed *float64, at time.Time) error {
	return nil
}

func (m *memRoutes) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

type memStops struct {
	mu   sync.Mutex
	rows map[string]*stop.Stop
}

func (m *memStops) Create(ctx context.Context, s *stop.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = s
	return nil
}

func (m *memStops) GetByID(ctx context.Context, id string) (*stop.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func (m *memStops) GetByIDForUpdate(ctx context.Context, id string) (*stop.Stop, error) {
	return m.GetByID(ctx, id)
}

func (m *memStops) ListByRoute(ctx context.Context, routeID string) ([]*stop.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*stop.Stop
	for _, s := range m.rows {
		if s.RouteID == routeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out, nil
}

func (m *memStops) Save(ctx context.Context, s *stop.Stop) error {
	return m.Create(ctx, s)
}

func (m *memStops) BatchUpdateETAs(ctx context.Context, updates []ports.ETAUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if s, ok := m.rows[u.StopID]; ok {
			s.SetEstimatedArrival(u.EstimatedArrival)
			tm := u.TravelMinutesFrom
			s.TravelMinutesFromPrevious = &tm
		}
	}
	return nil
}

func (m *memStops) Resequence(ctx context.Context, routeID string, orderedStopIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range orderedStopIDs {
		if s, ok := m.rows[id]; ok {
			s.SequenceOrder = i + 1
		}
	}
	return nil
}

func (m *memStops) CountOpen(ctx context.Context, routeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.RouteID == routeID && s.Open() {
			n++
		}
	}
	return n, nil
}

type memAddresses struct {
	rows map[string]*address.Address
}

func (m *memAddresses) Create(ctx context.Context, a *address.Address) error {
	m.rows[a.ID] = a
	return nil
}

func (m *memAddresses) GetByID(ctx context.Context, id string) (*address.Address, error) {
	return m.rows[id], nil
}

func (m *memAddresses) GetByIDs(ctx context.Context, ids []string) (map[string]*address.Address, error) {
	out := make(map[string]*address.Address, len(ids))
	for _, id := range ids {
		if a, ok := m.rows[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memAddresses) DeleteIfUnreferenced(ctx context.Context, id string) (bool, error) {
	delete(m.rows, id)
	return true, nil
}

type memUsers struct {
	byID map[string]*user.User
}

func (m *memUsers) CreateUser(ctx context.Context, u *user.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	return m.byID[id], nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) TouchLogin(ctx context.Context, id string, at time.Time) error { return nil }

func (m *memUsers) SetPushToken(ctx context.Context, id string, token *string) error { return nil }

// memSettings answers with an unconfigured webhook so delivery stays local.
type memSettings struct{}

func (memSettings) GetWebhook(ctx context.Context) (settings.Webhook, error) {
	return settings.Webhook{}, nil
}

func (memSettings) PutWebhook(ctx context.Context, w settings.Webhook) error { return nil }

func (memSettings) GetNotifications(ctx context.Context) (settings.Notifications, error) {
	return settings.DefaultNotifications(), nil
}

func (memSettings) GetDelivery(ctx context.Context) (settings.Delivery, error) {
	return settings.DefaultDelivery(), nil
}

type memPublisher struct {
	mu   sync.Mutex
	keys []string
	jobs [][]byte
}

func (p *memPublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.jobs = append(p.jobs, body)
	return nil
}

// ----- fixtures -----

type dispatchFixture struct {
	svc    ports.DispatchService
	routes *memRoutes
	stops  *memStops
	broker *live.Broker
	pub    *memPublisher
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	routes := &memRoutes{rows: map[string]*route.Route{}}
	stops := &memStops{rows: map[string]*stop.Stop{}}
	broker := live.NewBroker(logger.New("test"))
	pub := &memPublisher{}

	driver := &user.User{ID: "driver-1", Email: "driver@example.com", Role: user.RoleDriver, IsActive: true}
	operator := &user.User{ID: "op-1", Email: "ops@example.com", Role: user.RoleOperator, IsActive: true}

	svc := NewDispatchService(Deps{
		Logger:    logger.New("test"),
		UoW:       passthroughUoW{},
		Routes:    routes,
		Stops:     stops,
		Addresses: &memAddresses{rows: map[string]*address.Address{}},
		Users:     &memUsers{byID: map[string]*user.User{driver.ID: driver, operator.ID: operator}},
		Settings:  memSettings{},
		Cheap:     travel.NewCheapProvider(),
		Broker:    broker,
		Pub:       pub,
	})
	return &dispatchFixture{svc: svc, routes: routes, stops: stops, broker: broker, pub: pub}
}

// scheduledRoute builds a sent route assigned to driver-1 and stores it.
func (f *dispatchFixture) scheduledRoute(t *testing.T, id string) *route.Route {
	t.Helper()
	r, err := route.NewRoute("Route "+id, "op-1")
	require.NoError(t, err)
	r.ID = id
	require.NoError(t, r.AssignDriver("driver-1"))
	r.MarkOptimized("hash-"+id, 10, 60)
	require.NoError(t, r.Send())
	f.routes.rows[id] = r
	return r
}

func (f *dispatchFixture) addStop(t *testing.T, routeID, id string, seq int) *stop.Stop {
	t.Helper()
	s, err := stop.NewStop(routeID, "addr-"+id, seq, 0)
	require.NoError(t, err)
	s.ID = id
	f.stops.rows[id] = s
	return s
}

// ----- tests -----

func TestStartRouteRejectsSecondActiveRouteForDriver(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	x := f.scheduledRoute(t, "route-x")
	require.NoError(t, x.Start(time.Now()))
	y := f.scheduledRoute(t, "route-y")

	err := f.svc.StartRoute(ctx, "route-y")
	require.ErrorIs(t, err, ports.ErrConflict)
	require.Contains(t, err.Error(), "route-x", "the conflict names the blocking route")
	require.Equal(t, route.StatusScheduled, y.Status, "the refused route is untouched")

	// a paused route still holds the driver
	require.NoError(t, x.Pause())
	err = f.svc.StartRoute(ctx, "route-y")
	require.ErrorIs(t, err, ports.ErrConflict)
	require.Contains(t, err.Error(), "route-x")

	// once X terminates the driver is free
	require.NoError(t, x.Resume())
	require.NoError(t, x.Complete(time.Now()))
	require.NoError(t, f.svc.StartRoute(ctx, "route-y"))
	require.Equal(t, route.StatusInProgress, y.Status)
}

func TestCompleteLastStopCompletesRoute(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	r := f.scheduledRoute(t, "route-1")
	require.NoError(t, r.Start(time.Now()))

	now := time.Now().UTC()
	s1 := f.addStop(t, "route-1", "stop-1", 1)
	require.NoError(t, s1.FreezeOriginalETA(now))
	require.NoError(t, s1.Finish(stop.StatusCompleted, now, stop.TerminalInput{}))
	s2 := f.addStop(t, "route-1", "stop-2", 2)
	require.NoError(t, s2.FreezeOriginalETA(now))

	sub := f.broker.Subscribe("route-1")
	defer f.broker.Unsubscribe(sub)

	res, err := f.svc.CompleteStop(ctx, ports.CompleteStopInput{
		RouteID: "route-1",
		StopID:  "stop-2",
		Status:  stop.StatusCompleted,
	})
	require.NoError(t, err)
	require.True(t, res.RouteCompleted)
	require.Equal(t, stop.StatusCompleted.String(), res.Status)
	require.Equal(t, "on_time", res.ETARecalc)
	require.Equal(t, route.StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)

	// live stream: the terminal stop event, then the route completion
	ev := <-sub.C
	require.Equal(t, contracts.EventStopStatusChanged, ev.Name)
	ev = <-sub.C
	require.Equal(t, contracts.EventRouteCompleted, ev.Name)

	// the route creator is notified through the queue fabric
	require.Len(t, f.pub.keys, 1)
	require.Equal(t, contracts.RoutePushPrefix+"op-1", f.pub.keys[0])
	var job contracts.PushJob
	require.NoError(t, json.Unmarshal(f.pub.jobs[0], &job))
	require.Equal(t, contracts.EventRouteCompleted, job.Event)
	require.Equal(t, "route-1", job.Data["routeId"])
}

func TestCompleteStopKeepsRouteOpenWhileStopsRemain(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	r := f.scheduledRoute(t, "route-1")
	require.NoError(t, r.Start(time.Now()))

	now := time.Now().UTC()
	s1 := f.addStop(t, "route-1", "stop-1", 1)
	require.NoError(t, s1.FreezeOriginalETA(now))
	s2 := f.addStop(t, "route-1", "stop-2", 2)
	require.NoError(t, s2.FreezeOriginalETA(now))

	reason := "customer absent"
	res, err := f.svc.CompleteStop(ctx, ports.CompleteStopInput{
		RouteID:       "route-1",
		StopID:        "stop-1",
		Status:        stop.StatusFailed,
		FailureReason: &reason,
	})
	require.NoError(t, err)
	require.False(t, res.RouteCompleted)
	require.Equal(t, route.StatusInProgress, r.Status)
	require.Empty(t, f.pub.keys, "no completion fan-out while stops remain")
}

func TestCompleteStopRejectsNonTerminalStatus(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.svc.CompleteStop(context.Background(), ports.CompleteStopInput{
		RouteID: "route-1",
		StopID:  "stop-1",
		Status:  stop.StatusInTransit,
	})
	require.ErrorIs(t, err, ports.ErrValidation)
	require.True(t, strings.Contains(err.Error(), "terminal"))
}
