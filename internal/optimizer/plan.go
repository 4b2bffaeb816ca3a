package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatch/internal/domain/geo"
)

// Stop is one planning candidate. Coordinates are required; windows and
// priority are optional.
type Stop struct {
	ID             string
	Point          geo.Point
	ServiceMinutes int
	Priority       int // 0 = none; higher is more urgent
	WindowStart    *time.Time
	WindowEnd      *time.Time
}

// Request is everything the planner needs for one run.
type Request struct {
	Depot      geo.Point
	Stops      []Stop
	ShiftStart time.Time
	ShiftEnd   time.Time // zero means unbounded

	// Pinned endpoints. Either may be empty.
	FirstStopID string
	LastStopID  string
}

// Leg is one planned visit in tour order.
type Leg struct {
	StopID        string
	TravelMinutes float64 // from the previous position
	Arrival       time.Time
	Departure     time.Time
	WaitMinutes   float64
	LateByMinutes float64
}

// Plan is the planner's output.
type Plan struct {
	Legs             []Leg
	Unserviceable    []string
	TotalDistanceKM  float64
	TotalDurationMin float64
	DepotReturn      time.Time
	Warnings         []string
	Strategy         string // "vrptw" or "anneal"
}

// OrderedIDs returns the planned stop ids in visit order.
func (p *Plan) OrderedIDs() []string {
	out := make([]string, len(p.Legs))
	for i, leg := range p.Legs {
		out[i] = leg.StopID
	}
	return out
}

// ErrorKind classifies planner failures.
type ErrorKind string

const (
	KindTravelTimeUnavailable ErrorKind = "TravelTimeUnavailable"
	KindUnreachable           ErrorKind = "Unreachable"
	KindInvalidInput          ErrorKind = "InvalidInput"
)

// Error is the planner's failure type.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optimizer %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("optimizer %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

// Fingerprint computes a stable hash over the planning inputs in the given
// order. Equal fingerprints mean re-optimization would be a no-op.
func Fingerprint(stops []Stop) string {
	var b strings.Builder
	for i, s := range stops {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(s.ID)
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(s.Point.Lat, 'f', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(s.Point.Lng, 'f', -1, 64))
		b.WriteByte(':')
		if s.WindowStart != nil {
			b.WriteString(s.WindowStart.UTC().Format(time.RFC3339))
		}
		b.WriteByte(':')
		if s.WindowEnd != nil {
			b.WriteString(s.WindowEnd.UTC().Format(time.RFC3339))
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
