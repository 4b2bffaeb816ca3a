package ports

import (
	"context"
	"time"

	"dispatch/internal/domain/stop"
)

// ----- DTOs for the Auth service -----

// LoginInput is the validated body of POST /auth/login.
type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string // generated when absent
	DeviceInfo *string
}

// UserView is the public shape of a user returned by auth endpoints.
type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

// LoginResult is returned by AuthService.Login.
type LoginResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	DeviceID     string   `json:"deviceId"`
}

// RefreshInput is the validated body of POST /auth/refresh.
type RefreshInput struct {
	RefreshToken string
	DeviceID     string // optional; defaults to the stored row's device
}

// RefreshResult is returned by AuthService.Refresh.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

// LogoutInput is the validated body of POST /auth/logout.
type LogoutInput struct {
	UserID       string
	RefreshToken string // ignored when LogoutAll
	LogoutAll    bool
}

// AuthService exposes the session manager boundary.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (LoginResult, error)
	Refresh(ctx context.Context, in RefreshInput) (RefreshResult, error)
	Logout(ctx context.Context, in LogoutInput) error
}

// ----- DTOs for the Dispatch service -----

// CreateRouteInput creates an empty DRAFT route.
type CreateRouteInput struct {
	Name             string
	CreatedBy        string
	DepotID          *string
	ScheduledDate    *time.Time
	AssignedDriverID *string
}

// ImportStopInput is one stop of an integrator import.
type ImportStopInput struct {
	Street          string
	City            string
	FullAddress     string
	Lat             *float64
	Lng             *float64
	CustomerName    *string
	CustomerPhone   *string
	CustomerRUT     *string
	ExternalOrderID *string
	PaymentMethod   *string
	ServiceMinutes  *int
	Priority        int
	TimeWindowStart *time.Time
	TimeWindowEnd   *time.Time
	Notes           *string
}

// ImportRouteInput creates addresses, stops and a DRAFT route in one transaction.
type ImportRouteInput struct {
	Name      string
	CreatedBy string
	DepotID   *string
	Stops     []ImportStopInput
}

// ImportRouteResult is returned by DispatchService.ImportRoute.
type ImportRouteResult struct {
	RouteID   string   `json:"routeId"`
	StopIDs   []string `json:"stopIds"`
	StopCount int      `json:"stopCount"`
}

// OptimizeInput is the validated body of POST /routes/{id}/optimize.
type OptimizeInput struct {
	RouteID         string
	DriverStartTime *time.Time
	DriverEndTime   *time.Time
	Force           bool
	FirstStopID     string
	LastStopID      string
	UseHaversine    *bool // force the cheap provider either way; nil = size policy
}

// OptimizedStopView is one planned visit in an optimize response.
type OptimizedStopView struct {
	StopID           string     `json:"stopId"`
	SequenceOrder    int        `json:"sequenceOrder"`
	EstimatedArrival time.Time  `json:"estimatedArrival"`
	Departure        time.Time  `json:"departure"`
	TravelMinutes    float64    `json:"travelMinutes"`
	WaitMinutes      float64    `json:"waitMinutes"`
	LateByMinutes    float64    `json:"lateByMinutes"`
	TimeWindowEnd    *time.Time `json:"timeWindowEnd,omitempty"`
}

// OptimizeResult is returned by DispatchService.Optimize.
type OptimizeResult struct {
	RouteID          string              `json:"routeId"`
	Stops            []OptimizedStopView `json:"stops"`
	Unserviceable    []string            `json:"unserviceable,omitempty"`
	TotalDistanceKM  float64             `json:"totalDistanceKm"`
	TotalDurationMin float64             `json:"totalDurationMin"`
	DepotReturnTime  *time.Time          `json:"depotReturnTime,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
	Hash             string              `json:"optimizationHash"`
	ShortCircuited   bool                `json:"shortCircuited"`
}

// LocationInput is the validated body of POST /routes/{id}/location.
type LocationInput struct {
	RouteID        string
	Latitude       float64
	Longitude      float64
	HeadingDegrees *float64
	SpeedKMH       *float64
	AccuracyMeters *float64
}

// CompleteStopInput is the validated body of POST /routes/{id}/stops/{stopId}/complete.
type CompleteStopInput struct {
	RouteID       string
	StopID        string
	Status        stop.Status // COMPLETED | FAILED | SKIPPED
	Notes         *string
	FailureReason *string
	SignatureURL  *string
	PhotoURL      *string
}

// CompleteStopResult is returned by DispatchService.CompleteStop.
type CompleteStopResult struct {
	StopID         string `json:"stopId"`
	Status         string `json:"status"`
	RouteCompleted bool   `json:"routeCompleted"`
	ETARecalc      string `json:"etaRecalc"` // "recalculated" | "on_time" | "failed"
}

// PaymentVerifiedInput is the body of the inbound payment webhook.
type PaymentVerifiedInput struct {
	TransactionID string
	CustomerRUT   string
	Amount        float64
	BankReference *string
	VerifiedBy    string
	Rejected      bool
}

// DeleteRouteInput deletes a route; non-DRAFT deletions require the admin password.
type DeleteRouteInput struct {
	RouteID       string
	CallerID      string
	CallerRole    string
	AdminPassword string
}

// DispatchService exposes the route execution engine boundary.
type DispatchService interface {
	CreateRoute(ctx context.Context, in CreateRouteInput) (string, error)
	ImportRoute(ctx context.Context, in ImportRouteInput) (ImportRouteResult, error)
	ReorderStops(ctx context.Context, routeID string, orderedStopIDs []string) error
	Optimize(ctx context.Context, in OptimizeInput) (OptimizeResult, error)

	SendRoute(ctx context.Context, routeID string) error
	UnsendRoute(ctx context.Context, routeID string) error
	StartRoute(ctx context.Context, routeID string) error
	PauseRoute(ctx context.Context, routeID string) error
	ResumeRoute(ctx context.Context, routeID string) error
	CompleteRoute(ctx context.Context, routeID string) error
	DeleteRoute(ctx context.Context, in DeleteRouteInput) error

	UpdateDriverLocation(ctx context.Context, in LocationInput) error
	MarkStopInTransit(ctx context.Context, routeID, stopID string) error
	CompleteStop(ctx context.Context, in CompleteStopInput) (CompleteStopResult, error)

	HandlePaymentVerified(ctx context.Context, in PaymentVerifiedInput) error
	TestWebhook(ctx context.Context) error

	RunBackgroundConsumers(ctx context.Context)
}
