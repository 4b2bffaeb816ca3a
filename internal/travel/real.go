package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dispatch/internal/domain/geo"
)

// RealProvider calls an external routing HTTP API. One request per call,
// bounded by a 10 second timeout; callers decide when the cost is worth it.
type RealProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRealProvider constructs a RealProvider against the given routing API.
func NewRealProvider(baseURL, apiKey string) *RealProvider {
	return &RealProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the provider in logs.
func (p *RealProvider) Name() string { return "real" }

type apiPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TravelTime returns driving minutes from origin to destination.
func (p *RealProvider) TravelTime(ctx context.Context, origin, destination geo.Point, departAt time.Time) (float64, error) {
	var out struct {
		Minutes float64 `json:"minutes"`
	}
	err := p.post(ctx, "/route", map[string]any{
		"origin":      apiPoint{origin.Lat, origin.Lng},
		"destination": apiPoint{destination.Lat, destination.Lng},
		"depart_at":   departAt.UTC().Format(time.RFC3339),
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Minutes, nil
}

// Matrix returns pairwise travel minutes and meters over points.
func (p *RealProvider) Matrix(ctx context.Context, points []geo.Point) ([][]float64, [][]float64, error) {
	pts := make([]apiPoint, len(points))
	for i, pt := range points {
		pts[i] = apiPoint{pt.Lat, pt.Lng}
	}

	var out struct {
		Minutes [][]float64 `json:"minutes"`
		Meters  [][]float64 `json:"meters"`
	}
	if err := p.post(ctx, "/matrix", map[string]any{"points": pts}, &out); err != nil {
		return nil, nil, err
	}
	if len(out.Minutes) != len(points) || len(out.Meters) != len(points) {
		return nil, nil, fmt.Errorf("%w: matrix dimension mismatch", ErrUnavailable)
	}
	return out.Minutes, out.Meters, nil
}

// OptimizeWaypoints asks the API for its preferred visiting order.
func (p *RealProvider) OptimizeWaypoints(ctx context.Context, origin geo.Point, waypoints []geo.Point, destination geo.Point) ([]int, error) {
	pts := make([]apiPoint, len(waypoints))
	for i, pt := range waypoints {
		pts[i] = apiPoint{pt.Lat, pt.Lng}
	}

	var out struct {
		Order []int `json:"order"`
	}
	err := p.post(ctx, "/optimize", map[string]any{
		"origin":      apiPoint{origin.Lat, origin.Lng},
		"destination": apiPoint{destination.Lat, destination.Lng},
		"waypoints":   pts,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Order) != len(waypoints) {
		return nil, fmt.Errorf("%w: waypoint order length mismatch", ErrUnavailable)
	}
	return out.Order, nil
}

func (p *RealProvider) post(ctx context.Context, path string, body any, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: routing api returned %d", ErrUnavailable, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
