package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// RoadStatus is the provider's congestion code for a single road segment.
type RoadStatus int

const (
	StatusUnknown RoadStatus = 0
	StatusClear   RoadStatus = 1
	StatusSlow    RoadStatus = 2
	StatusJammed  RoadStatus = 3
)

// String returns a human-readable status label
func (s RoadStatus) String() string {
	switch s {
	case StatusClear:
		return "clear"
	case StatusSlow:
		return "slow"
	case StatusJammed:
		return "jammed"
	default:
		return "unknown"
	}
}

// RoadSegment is one road entry from a traffic status query. It is owned by
// the reconciliation engine for the duration of a single query cycle and is
// replaced, never merged, by the next cycle.
type RoadSegment struct {
	Name     string         `json:"name"`
	Status   RoadStatus     `json:"status"`
	Speed    *float64       `json:"speed,omitempty"` // km/h, nil when the provider omits it
	Geometry orb.LineString `json:"geometry"`
}

// SegmentKey is the composite identity used to match a segment across the
// two differently-shaped queries: road name plus polyline signature.
type SegmentKey struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
}

// Key returns the segment's composite identity key.
func (s RoadSegment) Key() SegmentKey {
	return SegmentKey{Name: s.Name, Signature: PolylineSignature(s.Geometry)}
}

// PolylineSignature renders a line as "lng,lat;lng,lat;..." with six decimal
// places. Fixed precision keeps the signature stable when the same road comes
// back from both query shapes.
func PolylineSignature(line orb.LineString) string {
	var b strings.Builder
	for i, p := range line {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%.6f,%.6f", p[0], p[1])
	}
	return b.String()
}

// FlowSummary aggregates the status distribution of one query result set.
type FlowSummary struct {
	TotalRoads      int     `json:"total_roads"`
	ClearRoads      int     `json:"clear_roads"`
	SlowRoads       int     `json:"slow_roads"`
	JammedRoads     int     `json:"jammed_roads"`
	UnknownRoads    int     `json:"unknown_roads"`
	AverageSpeed    float64 `json:"average_speed_kmh"` // over segments that report a speed; 0 when none do
	SpeedSamples    int     `json:"speed_samples"`
	CongestionRatio float64 `json:"congestion_ratio"` // jammed / total, 0 for an empty set
}

// SummarizeFlow derives a FlowSummary from a list of segments.
func SummarizeFlow(segments []RoadSegment) FlowSummary {
	var sum FlowSummary
	var speedSum float64

	sum.TotalRoads = len(segments)
	for _, seg := range segments {
		switch seg.Status {
		case StatusClear:
			sum.ClearRoads++
		case StatusSlow:
			sum.SlowRoads++
		case StatusJammed:
			sum.JammedRoads++
		default:
			sum.UnknownRoads++
		}
		if seg.Speed != nil {
			speedSum += *seg.Speed
			sum.SpeedSamples++
		}
	}

	if sum.SpeedSamples > 0 {
		sum.AverageSpeed = math.Round(speedSum/float64(sum.SpeedSamples)*10) / 10
	}
	if sum.TotalRoads > 0 {
		sum.CongestionRatio = float64(sum.JammedRoads) / float64(sum.TotalRoads)
	}
	return sum
}

// POI is a nearby point of interest returned by the place query.
type POI struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Location  orb.Point `json:"location"`   // lng, lat
	DistanceM float64   `json:"distance_m"` // from the query center
}
