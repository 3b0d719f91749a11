package domain

import (
	"math"
	"time"

	"github.com/paulmach/orb"
)

// ConsistencyReport compares the disk-shaped and rectangle-shaped query
// results for one cycle. It is recomputed every cycle and never persisted.
type ConsistencyReport struct {
	Center      orb.Point `json:"center"`
	RadiusKm    float64   `json:"radius_km"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalDisk         int     `json:"total_disk"`
	TotalRect         int     `json:"total_rect"`
	IntersectionCount int     `json:"intersection_count"`
	UnionCount        int     `json:"union_count"`
	MismatchRatio     float64 `json:"mismatch_ratio"`

	SampleOnlyDisk []SegmentKey `json:"sample_only_disk"`
	SampleOnlyRect []SegmentKey `json:"sample_only_rect"`

	DiskFlow FlowSummary `json:"disk_flow"`
	RectFlow FlowSummary `json:"rect_flow"`

	// A failed side degrades precision but does not fail the cycle; its
	// counts read as zero and the flag below records the degradation.
	DiskFailed bool `json:"disk_failed,omitempty"`
	RectFailed bool `json:"rect_failed,omitempty"`

	Densities []DensityStat `json:"densities,omitempty"`
}

// ComputeConsistency builds the set-comparison part of a report from the two
// result lists. Totals count raw entries; duplicates within one response stay
// separate entries and deduplication happens only across the two shapes, on
// the composite key. Samples keep the first sampleLimit keys unique to each
// side, in response order.
func ComputeConsistency(disk, rect []RoadSegment, sampleLimit int) ConsistencyReport {
	diskKeys := keySet(disk)
	rectKeys := keySet(rect)

	intersection := 0
	for k := range diskKeys {
		if _, ok := rectKeys[k]; ok {
			intersection++
		}
	}
	union := len(diskKeys) + len(rectKeys) - intersection

	ratio := 0.0
	if union > 0 {
		ratio = 1 - float64(intersection)/float64(union)
	}

	return ConsistencyReport{
		TotalDisk:         len(disk),
		TotalRect:         len(rect),
		IntersectionCount: intersection,
		UnionCount:        union,
		MismatchRatio:     ratio,
		SampleOnlyDisk:    sampleDifference(disk, rectKeys, sampleLimit),
		SampleOnlyRect:    sampleDifference(rect, diskKeys, sampleLimit),
		DiskFlow:          SummarizeFlow(disk),
		RectFlow:          SummarizeFlow(rect),
	}
}

func keySet(segments []RoadSegment) map[SegmentKey]struct{} {
	set := make(map[SegmentKey]struct{}, len(segments))
	for _, seg := range segments {
		set[seg.Key()] = struct{}{}
	}
	return set
}

// sampleDifference collects up to limit keys from segments that are absent
// from other, preserving first-occurrence order.
func sampleDifference(segments []RoadSegment, other map[SegmentKey]struct{}, limit int) []SegmentKey {
	var out []SegmentKey
	seen := make(map[SegmentKey]struct{})
	for _, seg := range segments {
		if len(out) >= limit {
			break
		}
		k := seg.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := other[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// DensityStat reports POI concentration for one category within the query disk.
type DensityStat struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	AreaKm2  float64 `json:"area_km2"`
	PerKm2   float64 `json:"per_km2"`
}

// NewDensityStat computes a density over the π·r² disk area.
func NewDensityStat(category string, count int, radiusKm float64) DensityStat {
	area := math.Pi * radiusKm * radiusKm
	stat := DensityStat{Category: category, Count: count, AreaKm2: area}
	if area > 0 {
		stat.PerKm2 = float64(count) / area
	}
	return stat
}
