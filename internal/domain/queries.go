package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// TrafficQuerier issues the two traffic-status query shapes against the
// geospatial provider. Implementations are pure request/response: no retry,
// no caching, no state between calls.
// This follows the Dependency Inversion Principle - domain defines the
// interface, internal/geo implements it.
type TrafficQuerier interface {
	// QueryDisk fetches road status within a circle around center.
	QueryDisk(ctx context.Context, center orb.Point, radiusKm float64) ([]RoadSegment, error)

	// QueryRectangle fetches road status within the rectangle derived from
	// center and radiusKm.
	QueryRectangle(ctx context.Context, center orb.Point, radiusKm float64) ([]RoadSegment, error)
}

// NearbyQuery selects points of interest around a center. Zero values fall
// back to provider defaults; radius and offset are clamped to the provider's
// supported ranges before the call.
type NearbyQuery struct {
	Center   orb.Point
	RadiusM  int
	Keywords string
	Types    string // provider category codes, "|"-separated
	Page     int
	Offset   int // page size
}

// PlaceQuerier issues nearby point-of-interest queries.
type PlaceQuerier interface {
	QueryNearby(ctx context.Context, q NearbyQuery) ([]POI, error)
}
