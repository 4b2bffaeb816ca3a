package handler

import (
	"net/http"

	"dispatch/internal/domain/stop"
	"dispatch/internal/ports"
)

type locationRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	Accuracy  *float64 `json:"accuracy"`
}

func (handler *DispatchHTTPHandler) handleLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req locationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := handler.svc.UpdateDriverLocation(ctx, ports.LocationInput{
		RouteID:        r.PathValue("id"),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		HeadingDegrees: req.Heading,
		SpeedKMH:       req.Speed,
		AccuracyMeters: req.Accuracy,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"accepted": true})
}

func (handler *DispatchHTTPHandler) handleStopInTransit(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if err := handler.svc.MarkStopInTransit(ctx, r.PathValue("id"), r.PathValue("stopId")); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{
		"stopId": r.PathValue("stopId"),
		"status": stop.StatusInTransit.String(),
	})
}

type completeStopRequest struct {
	Status        string  `json:"status"`
	Notes         *string `json:"notes"`
	FailureReason *string `json:"failureReason"`
	SignatureURL  *string `json:"signatureUrl"`
	PhotoURL      *string `json:"photoUrl"`
}

func (handler *DispatchHTTPHandler) handleCompleteStop(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req completeStopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := stop.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid stop status", err)
		return
	}

	res, err := handler.svc.CompleteStop(ctx, ports.CompleteStopInput{
		RouteID:       r.PathValue("id"),
		StopID:        r.PathValue("stopId"),
		Status:        status,
		Notes:         req.Notes,
		FailureReason: req.FailureReason,
		SignatureURL:  req.SignatureURL,
		PhotoURL:      req.PhotoURL,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}
