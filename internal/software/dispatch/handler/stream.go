package handler

import (
	"fmt"
	"net/http"
	"time"

	"dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	streamWriteWait   = 2 * time.Second
)

// handleEvents streams route events over SSE. The subscription lives until
// the client disconnects or falls so far behind that the broker evicts it.
func (handler *DispatchHTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	routeID := r.PathValue("id")

	_, ok := w.(http.Flusher)
	if !ok {
		handler.httpError(ctx, w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := handler.broker.Subscribe(routeID)
	defer handler.broker.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	write := func(b []byte) error {
		_ = rc.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if _, err := w.Write(b); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := write([]byte(fmt.Sprintf("event: connected\ndata: {\"routeId\":%q}\n\n", routeID))); err != nil {
		return
	}

	handler.logger.Info(ctx, "stream_opened", "Route event stream opened", map[string]any{
		"route_id":    routeID,
		"subscribers": handler.broker.SubscriberCount(routeID),
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				// evicted by the broker
				return
			}
			frame := fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			if err := write([]byte(frame)); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// token auth already ran in the middleware; the driver app connects from
	// a native webview with no meaningful origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsLocationFrame struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	Accuracy  *float64 `json:"accuracy"`
}

// handleLocationWS ingests a continuous GPS frame stream from the driver app.
// Each frame runs through the same path as the REST location endpoint.
func (handler *DispatchHTTPHandler) handleLocationWS(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	routeID := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error(ctx, "ws_upgrade_failed", "WebSocket upgrade failed", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 12)
	handler.logger.Info(ctx, "ws_opened", "Driver location stream opened", map[string]any{"route_id": routeID})

	for {
		var frame wsLocationFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				handler.logger.Error(ctx, "ws_read_failed", "Driver location stream broke", err, map[string]any{"route_id": routeID})
			}
			return
		}

		err := handler.svc.UpdateDriverLocation(ctx, ports.LocationInput{
			RouteID:        routeID,
			Latitude:       frame.Latitude,
			Longitude:      frame.Longitude,
			HeadingDegrees: frame.Heading,
			SpeedKMH:       frame.Speed,
			AccuracyMeters: frame.Accuracy,
		})
		if err != nil {
			// tell the app why its sample was dropped but keep the socket open
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_ = conn.WriteJSON(map[string]any{"success": false, "error": err.Error()})
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		_ = conn.WriteJSON(map[string]any{"success": true})
	}
}
