package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dispatch/internal/general/logger"

	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	secret := "wh-secret-123"
	body := []byte(`{"event":"route.started","route":{"routeId":"r1"}}`)

	header := Sign(secret, body)

	// a receiver recomputing the HMAC from scratch gets the same header
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), header)

	require.True(t, VerifySignature(secret, body, header))
	require.False(t, VerifySignature("other-secret", body, header))
	require.False(t, VerifySignature(secret, []byte("tampered"), header))
	require.False(t, VerifySignature(secret, body, "sha256=deadbeef"))
}

func TestWindowSnapsToTenMinutes(t *testing.T) {
	at := func(h, m, s int) time.Time {
		return time.Date(2025, 6, 2, h, m, s, 0, time.UTC)
	}

	tests := []struct {
		name      string
		eta       time.Time
		before    time.Duration
		after     time.Duration
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"mid window", at(11, 7, 0), 15 * time.Minute, 30 * time.Minute, at(10, 50, 0), at(11, 40, 0)},
		{"already on boundary", at(11, 0, 0), 10 * time.Minute, 10 * time.Minute, at(10, 50, 0), at(11, 10, 0)},
		{"seconds push end outward", at(11, 0, 30), 10 * time.Minute, 10 * time.Minute, at(10, 50, 0), at(11, 20, 0)},
		{"zero widths still snap", at(11, 4, 0), 0, 0, at(11, 0, 0), at(11, 10, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end := Window(tc.eta, tc.before, tc.after)
			require.Equal(t, tc.wantStart, start)
			require.Equal(t, tc.wantEnd, end)
			require.False(t, end.Before(start))
		})
	}
}

func TestDispatchSuccessFirstAttempt(t *testing.T) {
	var gotEvent, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get(HeaderEvent)
		gotSig = r.Header.Get(HeaderSignature)
		require.NotEmpty(t, r.Header.Get(HeaderTimestamp))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(logger.New("test"))
	body := []byte(`{"event":"route.started"}`)

	res := d.Dispatch(context.Background(), srv.URL, "route.started", body, "sec", 3)
	require.True(t, res.OK)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Equal(t, "route.started", gotEvent)
	require.True(t, VerifySignature("sec", body, gotSig))
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(logger.New("test"))
	res := d.Dispatch(context.Background(), srv.URL, "eta.updated", []byte(`{}`), "", 3)
	require.True(t, res.OK)
	require.Equal(t, 3, res.Attempts)
	require.EqualValues(t, 3, hits.Load())
}

func TestDispatchStopsOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	d := NewDispatcher(logger.New("test"))
	res := d.Dispatch(context.Background(), srv.URL, "stop.completed", []byte(`{}`), "", 5)
	require.False(t, res.OK)
	require.Equal(t, 1, res.Attempts)
	require.EqualValues(t, 1, hits.Load(), "4xx must not be retried")
	require.Equal(t, http.StatusUnprocessableEntity, res.HTTPStatus)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(logger.New("test"))
	res := d.Dispatch(context.Background(), srv.URL, "route.completed", []byte(`{}`), "", 2)
	require.False(t, res.OK)
	require.Equal(t, 2, res.Attempts)
	require.EqualValues(t, 2, hits.Load())
	require.Error(t, res.Err)
}

func TestDispatchUnsignedWhenNoSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get(HeaderSignature))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(logger.New("test"))
	res := d.Dispatch(context.Background(), srv.URL, "route.started", []byte(`{}`), "", 1)
	require.True(t, res.OK)
}
