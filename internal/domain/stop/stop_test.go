package stop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newPendingStop(t *testing.T) *Stop {
	t.Helper()
	s, err := NewStop("route-1", "addr-1", 1, 10)
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func TestNewStopValidation(t *testing.T) {
	_, err := NewStop("", "addr-1", 1, 10)
	require.ErrorIs(t, err, ErrRouteIDRequired)

	_, err = NewStop("route-1", "", 1, 10)
	require.ErrorIs(t, err, ErrAddressIDRequired)

	_, err = NewStop("route-1", "addr-1", 0, 10)
	require.ErrorIs(t, err, ErrInvalidSequence)

	s, err := NewStop("route-1", "addr-1", 3, -5)
	require.NoError(t, err)
	require.Zero(t, s.EstimatedMinutes, "negative service time clamps to zero")
	require.Equal(t, StatusPending, s.Status)
	require.Equal(t, PaymentPending, s.PaymentStatus)
}

func TestFreezeOriginalETAOnce(t *testing.T) {
	s := newPendingStop(t)
	eta := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	require.NoError(t, s.FreezeOriginalETA(eta))
	require.Equal(t, eta, *s.OriginalEstimatedArrival)
	require.Equal(t, eta, *s.EstimatedArrival)

	require.ErrorIs(t, s.FreezeOriginalETA(eta.Add(time.Hour)), ErrOriginalETAFrozen)
	require.Equal(t, eta, *s.OriginalEstimatedArrival)

	// the live ETA moves freely; the frozen one does not
	s.SetEstimatedArrival(eta.Add(25 * time.Minute))
	require.Equal(t, eta.Add(25*time.Minute), *s.EstimatedArrival)
	require.Equal(t, eta, *s.OriginalEstimatedArrival)
}

func TestStatusFlow(t *testing.T) {
	s := newPendingStop(t)
	now := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)

	require.NoError(t, s.MarkInTransit())
	require.Equal(t, StatusInTransit, s.Status)

	require.NoError(t, s.MarkArrived(now))
	require.Equal(t, StatusArrived, s.Status)
	require.Equal(t, now, *s.ArrivedAt)

	require.NoError(t, s.Finish(StatusCompleted, now.Add(5*time.Minute), TerminalInput{}))
	require.Equal(t, StatusCompleted, s.Status)
	require.False(t, s.Open())

	// terminal is final
	require.ErrorIs(t, s.MarkInTransit(), ErrAlreadyTerminal)
	require.ErrorIs(t, s.Finish(StatusFailed, now, TerminalInput{}), ErrAlreadyTerminal)
}

func TestFinishRequiresTerminalStatus(t *testing.T) {
	s := newPendingStop(t)
	require.ErrorIs(t, s.Finish(StatusInTransit, time.Now(), TerminalInput{}), ErrNotTerminalStatus)
}

func TestProofOfDeliveryEnforcement(t *testing.T) {
	now := time.Now()

	t.Run("signature required", func(t *testing.T) {
		s := newPendingStop(t)
		s.RequireSignature = true

		require.ErrorIs(t, s.Finish(StatusCompleted, now, TerminalInput{}), ErrSignatureRequired)
		require.NoError(t, s.Finish(StatusCompleted, now, TerminalInput{SignatureURL: strPtr("https://pod/sig.png")}))
		require.Equal(t, "https://pod/sig.png", *s.SignatureURL)
	})

	t.Run("photo required", func(t *testing.T) {
		s := newPendingStop(t)
		s.RequirePhoto = true

		require.ErrorIs(t, s.Finish(StatusCompleted, now, TerminalInput{}), ErrPhotoRequired)
		require.NoError(t, s.Finish(StatusCompleted, now, TerminalInput{PhotoURL: strPtr("https://pod/door.jpg")}))
	})

	t.Run("failed and skipped bypass proof", func(t *testing.T) {
		s := newPendingStop(t)
		s.RequireSignature = true
		s.RequirePhoto = true

		reason := "customer absent"
		require.NoError(t, s.Finish(StatusFailed, now, TerminalInput{FailureReason: &reason}))
		require.Equal(t, reason, *s.FailureReason)
	})
}

func TestFinishDirectFromPending(t *testing.T) {
	// drivers often complete without ever marking in-transit
	s := newPendingStop(t)
	now := time.Now()

	require.NoError(t, s.Finish(StatusSkipped, now, TerminalInput{Notes: strPtr("gate locked")}))
	require.Equal(t, StatusSkipped, s.Status)
	require.Equal(t, "gate locked", *s.Notes)
	require.NotNil(t, s.CompletedAt)
}
