package handler

import (
	"context"
	"net/http"
	"time"

	"dispatch/internal/general/jwt"
	"dispatch/internal/ports"
)

type createRouteRequest struct {
	Name             string     `json:"name"`
	DepotID          *string    `json:"depotId"`
	ScheduledDate    *time.Time `json:"scheduledDate"`
	AssignedDriverID *string    `json:"assignedDriverId"`
}

func (handler *DispatchHTTPHandler) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)

	var req createRouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id, err := handler.svc.CreateRoute(ctx, ports.CreateRouteInput{
		Name:             req.Name,
		CreatedBy:        claims.Subject,
		DepotID:          req.DepotID,
		ScheduledDate:    req.ScheduledDate,
		AssignedDriverID: req.AssignedDriverID,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, map[string]string{"routeId": id})
}

type importStopRequest struct {
	Street          string     `json:"street"`
	City            string     `json:"city"`
	FullAddress     string     `json:"fullAddress"`
	Lat             *float64   `json:"lat"`
	Lng             *float64   `json:"lng"`
	CustomerName    *string    `json:"customerName"`
	CustomerPhone   *string    `json:"customerPhone"`
	CustomerRUT     *string    `json:"customerRut"`
	ExternalOrderID *string    `json:"externalOrderId"`
	PaymentMethod   *string    `json:"paymentMethod"`
	ServiceMinutes  *int       `json:"serviceMinutes"`
	Priority        int        `json:"priority"`
	TimeWindowStart *time.Time `json:"timeWindowStart"`
	TimeWindowEnd   *time.Time `json:"timeWindowEnd"`
	Notes           *string    `json:"notes"`
}

type importRouteRequest struct {
	Name    string              `json:"name"`
	DepotID *string             `json:"depotId"`
	Stops   []importStopRequest `json:"stops"`
}

func (handler *DispatchHTTPHandler) handleImportRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)

	var req importRouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ports.ImportRouteInput{
		Name:      req.Name,
		CreatedBy: claims.Subject,
		DepotID:   req.DepotID,
	}
	for _, s := range req.Stops {
		in.Stops = append(in.Stops, ports.ImportStopInput{
			Street:          s.Street,
			City:            s.City,
			FullAddress:     s.FullAddress,
			Lat:             s.Lat,
			Lng:             s.Lng,
			CustomerName:    s.CustomerName,
			CustomerPhone:   s.CustomerPhone,
			CustomerRUT:     s.CustomerRUT,
			ExternalOrderID: s.ExternalOrderID,
			PaymentMethod:   s.PaymentMethod,
			ServiceMinutes:  s.ServiceMinutes,
			Priority:        s.Priority,
			TimeWindowStart: s.TimeWindowStart,
			TimeWindowEnd:   s.TimeWindowEnd,
			Notes:           s.Notes,
		})
	}

	res, err := handler.svc.ImportRoute(ctx, in)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, res)
}

type reorderRequest struct {
	StopIDs []string `json:"stopIds"`
}

func (handler *DispatchHTTPHandler) handleReorderStops(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := handler.svc.ReorderStops(ctx, r.PathValue("id"), req.StopIDs); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"reordered": true})
}

type optimizeRequest struct {
	DriverStartTime *time.Time `json:"driverStartTime"`
	DriverEndTime   *time.Time `json:"driverEndTime"`
	Force           bool       `json:"force"`
	FirstStopID     string     `json:"firstStopId"`
	LastStopID      string     `json:"lastStopId"`
	UseHaversine    *bool      `json:"useHaversine"`
}

func (handler *DispatchHTTPHandler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	req := optimizeRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	res, err := handler.svc.Optimize(ctx, ports.OptimizeInput{
		RouteID:         r.PathValue("id"),
		DriverStartTime: req.DriverStartTime,
		DriverEndTime:   req.DriverEndTime,
		Force:           req.Force,
		FirstStopID:     req.FirstStopID,
		LastStopID:      req.LastStopID,
		UseHaversine:    req.UseHaversine,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

func (handler *DispatchHTTPHandler) handleSendRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.SendRoute, "sent")
}

func (handler *DispatchHTTPHandler) handleUnsendRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.UnsendRoute, "unsent")
}

func (handler *DispatchHTTPHandler) handleStartRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.StartRoute, "started")
}

func (handler *DispatchHTTPHandler) handlePauseRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.PauseRoute, "paused")
}

func (handler *DispatchHTTPHandler) handleResumeRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.ResumeRoute, "resumed")
}

func (handler *DispatchHTTPHandler) handleCompleteRoute(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.svc.CompleteRoute, "completed")
}

// transition runs one bodyless route state change.
func (handler *DispatchHTTPHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, routeID string) error, verb string) {
	ctx := handler.withReqID(r.Context(), r)
	routeID := r.PathValue("id")

	if err := fn(ctx, routeID); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"routeId": routeID, "status": verb})
}

type deleteRouteRequest struct {
	AdminPassword string `json:"adminPassword"`
}

func (handler *DispatchHTTPHandler) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	claims := jwt.RequireClaims(r)

	req := deleteRouteRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	err := handler.svc.DeleteRoute(ctx, ports.DeleteRouteInput{
		RouteID:       r.PathValue("id"),
		CallerID:      claims.Subject,
		CallerRole:    claims.Role.String(),
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]bool{"deleted": true})
}
