package ports

import (
	"context"
	"time"

	"dispatch/internal/domain/address"
	"dispatch/internal/domain/depot"
	"dispatch/internal/domain/geo"
	"dispatch/internal/domain/payment"
	"dispatch/internal/domain/route"
	"dispatch/internal/domain/session"
	"dispatch/internal/domain/settings"
	"dispatch/internal/domain/stop"
	"dispatch/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the methods for managing user data.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	SetPushToken(ctx context.Context, id string, token *string) error
}

// RefreshTokenRepository manages single-use refresh token rows.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, rec *session.RefreshTokenRecord) error

	// FindUsable returns the non-revoked, unexpired row matching (userID, tokenHash), or nil.
	FindUsable(ctx context.Context, userID, tokenHash string, now time.Time) (*session.RefreshTokenRecord, error)

	// RevokeByID sets revoked_at only if it is still null. Returns false when another
	// caller revoked the row first; this predicate is the single-use race arbiter.
	RevokeByID(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeForDevice revokes any live row for (userID, deviceID) ahead of inserting a new one.
	RevokeForDevice(ctx context.Context, userID, deviceID string, at time.Time) error

	// RevokeAllForUser revokes every live row for the user. Returns the count revoked.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
}

// DepotRepository defines the methods for managing depot data.
type DepotRepository interface {
	Create(ctx context.Context, d *depot.Depot) error
	GetByID(ctx context.Context, id string) (*depot.Depot, error)
	GetDefault(ctx context.Context) (*depot.Depot, error)
}

// AddressRepository defines the methods for managing shared address data.
type AddressRepository interface {
	Create(ctx context.Context, a *address.Address) error
	GetByID(ctx context.Context, id string) (*address.Address, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*address.Address, error)

	// DeleteIfUnreferenced removes the address unless any stop still points at it.
	DeleteIfUnreferenced(ctx context.Context, id string) (bool, error)
}

// RouteRepository defines the methods for managing route data.
type RouteRepository interface {
	Create(ctx context.Context, r *route.Route) error
	GetByID(ctx context.Context, id string) (*route.Route, error)

	// GetByIDForUpdate locks the row for the remainder of the transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*route.Route, error)

	// GetActiveForDriver returns the driver's IN_PROGRESS or PAUSED route, or nil.
	GetActiveForDriver(ctx context.Context, driverID string) (*route.Route, error)

	Save(ctx context.Context, r *route.Route) error
	UpdateDriverLocation(ctx context.Context, routeID string, p geo.Point, heading, speed *float64, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ETAUpdate is one downstream arrival rewrite produced by recalculation.
type ETAUpdate struct {
	StopID            string
	EstimatedArrival  time.Time
	TravelMinutesFrom float64
	SequenceOrder     int
}

// StopRepository defines the methods for managing stop data.
type StopRepository interface {
	Create(ctx context.Context, s *stop.Stop) error
	GetByID(ctx context.Context, id string) (*stop.Stop, error)

	// GetByIDForUpdate locks the row; concurrent terminal transitions serialize here
	// and the loser observes the winner's terminal status.
	GetByIDForUpdate(ctx context.Context, id string) (*stop.Stop, error)

	// ListByRoute returns the route's stops ordered by sequence_order.
	ListByRoute(ctx context.Context, routeID string) ([]*stop.Stop, error)

	Save(ctx context.Context, s *stop.Stop) error

	// BatchUpdateETAs rewrites estimated_arrival (never the frozen original) for many stops.
	BatchUpdateETAs(ctx context.Context, updates []ETAUpdate) error

	// Resequence applies a new stop order with a negative-then-positive two-phase
	// write so the (route_id, sequence_order) uniqueness never trips mid-update.
	Resequence(ctx context.Context, routeID string, orderedStopIDs []string) error

	// CountOpen returns the number of PENDING/IN_TRANSIT/ARRIVED stops on a route.
	CountOpen(ctx context.Context, routeID string) (int, error)
}

// PaymentRepository defines the methods for managing payment data.
type PaymentRepository interface {
	Create(ctx context.Context, p *payment.Payment) error
	ListByStop(ctx context.Context, stopID string) ([]*payment.Payment, error)

	// FindPendingByReference matches an inbound verification event to a pending row
	// by transaction id or customer RUT.
	FindPendingByReference(ctx context.Context, transactionID, customerRUT string) (*payment.Payment, error)

	Save(ctx context.Context, p *payment.Payment) error
}

// SettingsRepository reads and writes well-known settings blobs.
type SettingsRepository interface {
	GetWebhook(ctx context.Context) (settings.Webhook, error)
	PutWebhook(ctx context.Context, w settings.Webhook) error
	GetNotifications(ctx context.Context) (settings.Notifications, error)
	GetDelivery(ctx context.Context) (settings.Delivery, error)
}

// TrackingRepository archives driver position history.
type TrackingRepository interface {
	Append(ctx context.Context, p *geo.TrackingPoint) error
	ListByRoute(ctx context.Context, routeID string, limit int) ([]*geo.TrackingPoint, error)
}
