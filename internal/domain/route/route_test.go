package route

import (
	"testing"
	"time"

	"dispatch/internal/domain/geo"

	"github.com/stretchr/testify/require"
)

func sendableRoute(t *testing.T) *Route {
	t.Helper()
	r, err := NewRoute("Morning North", "user-1")
	require.NoError(t, err)
	require.NoError(t, r.AssignDriver("driver-1"))
	r.MarkOptimized("hash-1", 12.5, 95)
	return r
}

func TestNewRouteValidation(t *testing.T) {
	_, err := NewRoute("  ", "user-1")
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = NewRoute("Morning North", "")
	require.ErrorIs(t, err, ErrCreatorRequired)

	r, err := NewRoute("  Morning North  ", "user-1")
	require.NoError(t, err)
	require.Equal(t, "Morning North", r.Name)
	require.Equal(t, StatusDraft, r.Status)
}

func TestSendGuards(t *testing.T) {
	r, err := NewRoute("Morning North", "user-1")
	require.NoError(t, err)

	// neither optimized nor assigned
	require.ErrorIs(t, r.Send(), ErrNotOptimized)

	r.MarkOptimized("h", 1, 1)
	require.ErrorIs(t, r.Send(), ErrNoDriverAssigned)

	require.NoError(t, r.AssignDriver("driver-1"))
	require.NoError(t, r.Send())
	require.Equal(t, StatusScheduled, r.Status)
	require.NotNil(t, r.SentAt)

	// double send
	require.ErrorIs(t, r.Send(), ErrInvalidStatusTransition)
}

func TestUnsendBeforeStart(t *testing.T) {
	r := sendableRoute(t)
	require.NoError(t, r.Send())

	require.NoError(t, r.Unsend())
	require.Equal(t, StatusDraft, r.Status)
	require.Nil(t, r.SentAt)

	// a started route cannot be unsent
	require.NoError(t, r.Send())
	require.NoError(t, r.Start(time.Now()))
	require.ErrorIs(t, r.Unsend(), ErrInvalidStatusTransition)
}

func TestFullLifecycle(t *testing.T) {
	r := sendableRoute(t)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Send())
	require.NoError(t, r.Start(now))
	require.Equal(t, StatusInProgress, r.Status)
	require.Equal(t, now, *r.StartedAt)

	require.NoError(t, r.Pause())
	require.Equal(t, StatusPaused, r.Status)
	require.NotNil(t, r.PausedAt)

	require.NoError(t, r.Resume())
	require.Equal(t, StatusInProgress, r.Status)
	require.Nil(t, r.PausedAt)

	require.NoError(t, r.Complete(now.Add(4*time.Hour)))
	require.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)
}

func TestIllegalTransitions(t *testing.T) {
	r := sendableRoute(t)

	require.ErrorIs(t, r.Start(time.Now()), ErrInvalidStatusTransition) // DRAFT cannot start
	require.ErrorIs(t, r.Pause(), ErrInvalidStatusTransition)
	require.ErrorIs(t, r.Resume(), ErrInvalidStatusTransition)
	require.ErrorIs(t, r.Complete(time.Now()), ErrInvalidStatusTransition)

	require.NoError(t, r.Send())
	require.NoError(t, r.Start(time.Now()))
	require.ErrorIs(t, r.Start(time.Now()), ErrAlreadyStarted)

	require.NoError(t, r.Complete(time.Now()))
	require.ErrorIs(t, r.Cancel(), ErrInvalidStatusTransition) // terminal
}

func TestAssignDriverOnlyInDraft(t *testing.T) {
	r := sendableRoute(t)
	require.NoError(t, r.AssignDriver("driver-2"))
	require.Equal(t, "driver-2", *r.AssignedDriverID)

	require.NoError(t, r.Send())
	require.ErrorIs(t, r.AssignDriver("driver-3"), ErrInvalidStatusTransition)
}

func TestUpdateDriverLocation(t *testing.T) {
	r := sendableRoute(t)
	p := geo.Point{Lat: -33.45, Lng: -70.66}

	require.ErrorIs(t, r.UpdateDriverLocation(p, nil, nil, time.Now()), ErrNotInProgress)

	require.NoError(t, r.Send())
	require.NoError(t, r.Start(time.Now()))

	heading := 270.0
	require.NoError(t, r.UpdateDriverLocation(p, &heading, nil, time.Now()))
	require.Equal(t, p, *r.DriverPoint)
	require.Equal(t, heading, *r.DriverHeading)

	// invalid coordinates are rejected
	require.Error(t, r.UpdateDriverLocation(geo.Point{Lat: 99}, nil, nil, time.Now()))
}
