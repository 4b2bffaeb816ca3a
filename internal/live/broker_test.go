package live

import (
	"context"
	"encoding/json"
	"testing"

	"dispatch/internal/general/logger"

	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesRoomOnly(t *testing.T) {
	b := NewBroker(logger.New("test"))
	ctx := context.Background()

	subA := b.Subscribe("route-a")
	subB := b.Subscribe("route-b")
	defer b.Unsubscribe(subA)
	defer b.Unsubscribe(subB)

	b.Broadcast(ctx, "route-a", "route.started", map[string]string{"routeId": "route-a"})

	ev := <-subA.C
	require.Equal(t, "route.started", ev.Name)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	require.Equal(t, "route-a", payload["routeId"])

	select {
	case ev := <-subB.C:
		t.Fatalf("route-b subscriber received %q", ev.Name)
	default:
	}
}

func TestBroadcastFanOut(t *testing.T) {
	b := NewBroker(logger.New("test"))
	ctx := context.Background()

	subs := make([]*Subscriber, 5)
	for i := range subs {
		subs[i] = b.Subscribe("route-1")
	}
	require.Equal(t, 5, b.SubscriberCount("route-1"))

	b.Broadcast(ctx, "route-1", "driver.location_updated", map[string]float64{"lat": -33.45})
	for i, sub := range subs {
		ev := <-sub.C
		require.Equal(t, "driver.location_updated", ev.Name, "subscriber %d", i)
	}

	for _, sub := range subs {
		b.Unsubscribe(sub)
	}
	require.Zero(t, b.SubscriberCount("route-1"))
}

func TestStalledSubscriberIsEvicted(t *testing.T) {
	b := NewBroker(logger.New("test"))
	ctx := context.Background()

	stalled := b.Subscribe("route-1")
	healthy := b.Subscribe("route-1")
	defer b.Unsubscribe(healthy)

	// fill the stalled subscriber's buffer, then one more
	for i := 0; i <= SubscriberBuffer; i++ {
		b.Broadcast(ctx, "route-1", "eta.updated", i)
		// keep the healthy one draining
		<-healthy.C
	}

	require.Equal(t, 1, b.SubscriberCount("route-1"))

	// the evicted channel is closed after its buffered events drain
	n := 0
	for range stalled.C {
		n++
	}
	require.Equal(t, SubscriberBuffer, n)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker(logger.New("test"))

	sub := b.Subscribe("route-1")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second call must not panic or double-close

	_, open := <-sub.C
	require.False(t, open)
	require.Zero(t, b.SubscriberCount("route-1"))
}

func TestBroadcastToEmptyRoom(t *testing.T) {
	b := NewBroker(logger.New("test"))
	// no subscribers; must simply not panic
	b.Broadcast(context.Background(), "route-none", "route.sent", map[string]string{})
	require.Zero(t, b.SubscriberCount("route-none"))
}
