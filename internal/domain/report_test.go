package domain

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func segment(name string, status RoadStatus, line orb.LineString) RoadSegment {
	return RoadSegment{Name: name, Status: status, Geometry: line}
}

func TestComputeConsistencyPartialOverlap(t *testing.T) {
	a := segment("A", StatusClear, orb.LineString{{116.40, 39.90}, {116.41, 39.91}})
	b := segment("B", StatusSlow, orb.LineString{{116.42, 39.92}, {116.43, 39.93}})
	c := segment("C", StatusJammed, orb.LineString{{116.44, 39.94}, {116.45, 39.95}})
	d := segment("D", StatusClear, orb.LineString{{116.46, 39.96}, {116.47, 39.97}})

	report := ComputeConsistency(
		[]RoadSegment{a, b, c},
		[]RoadSegment{b, c, d},
		10,
	)

	if report.TotalDisk != 3 {
		t.Errorf("TotalDisk: got %d, want 3", report.TotalDisk)
	}
	if report.TotalRect != 3 {
		t.Errorf("TotalRect: got %d, want 3", report.TotalRect)
	}
	if report.IntersectionCount != 2 {
		t.Errorf("IntersectionCount: got %d, want 2", report.IntersectionCount)
	}
	if report.UnionCount != 4 {
		t.Errorf("UnionCount: got %d, want 4", report.UnionCount)
	}
	if report.MismatchRatio != 0.5 {
		t.Errorf("MismatchRatio: got %v, want 0.5", report.MismatchRatio)
	}

	if len(report.SampleOnlyDisk) != 1 || report.SampleOnlyDisk[0].Name != "A" {
		t.Errorf("SampleOnlyDisk: got %v, want [A]", report.SampleOnlyDisk)
	}
	if len(report.SampleOnlyRect) != 1 || report.SampleOnlyRect[0].Name != "D" {
		t.Errorf("SampleOnlyRect: got %v, want [D]", report.SampleOnlyRect)
	}
}

func TestComputeConsistencyIdenticalSets(t *testing.T) {
	a := segment("A", StatusClear, orb.LineString{{116.40, 39.90}, {116.41, 39.91}})
	b := segment("B", StatusSlow, orb.LineString{{116.42, 39.92}, {116.43, 39.93}})

	report := ComputeConsistency([]RoadSegment{a, b}, []RoadSegment{b, a}, 10)

	if report.MismatchRatio != 0 {
		t.Errorf("MismatchRatio: got %v, want 0", report.MismatchRatio)
	}
	if report.IntersectionCount != 2 || report.UnionCount != 2 {
		t.Errorf("counts: got i=%d u=%d, want 2/2", report.IntersectionCount, report.UnionCount)
	}
	if len(report.SampleOnlyDisk) != 0 || len(report.SampleOnlyRect) != 0 {
		t.Errorf("samples should be empty, got %v / %v", report.SampleOnlyDisk, report.SampleOnlyRect)
	}
}

func TestComputeConsistencyBothEmpty(t *testing.T) {
	report := ComputeConsistency(nil, nil, 10)

	if report.UnionCount != 0 {
		t.Errorf("UnionCount: got %d, want 0", report.UnionCount)
	}
	if report.MismatchRatio != 0 {
		t.Errorf("MismatchRatio for empty union: got %v, want 0", report.MismatchRatio)
	}
}

func TestComputeConsistencyDuplicateEntries(t *testing.T) {
	// Totals count raw entries; the key sets deduplicate, so a road listed
	// twice in one response contributes one key.
	a := segment("A", StatusClear, orb.LineString{{116.40, 39.90}, {116.41, 39.91}})

	report := ComputeConsistency([]RoadSegment{a, a}, []RoadSegment{a}, 10)

	if report.TotalDisk != 2 {
		t.Errorf("TotalDisk: got %d, want 2", report.TotalDisk)
	}
	if report.IntersectionCount != 1 || report.UnionCount != 1 {
		t.Errorf("counts: got i=%d u=%d, want 1/1", report.IntersectionCount, report.UnionCount)
	}
	if report.MismatchRatio != 0 {
		t.Errorf("MismatchRatio: got %v, want 0", report.MismatchRatio)
	}
}

func TestComputeConsistencySampleLimit(t *testing.T) {
	var disk []RoadSegment
	for i := 0; i < 5; i++ {
		disk = append(disk, segment(
			string(rune('A'+i)),
			StatusClear,
			orb.LineString{{116.40 + float64(i), 39.90}, {116.41 + float64(i), 39.91}},
		))
	}

	report := ComputeConsistency(disk, nil, 3)

	if len(report.SampleOnlyDisk) != 3 {
		t.Fatalf("SampleOnlyDisk length: got %d, want 3", len(report.SampleOnlyDisk))
	}
	// Response order preserved.
	for i, want := range []string{"A", "B", "C"} {
		if report.SampleOnlyDisk[i].Name != want {
			t.Errorf("SampleOnlyDisk[%d]: got %s, want %s", i, report.SampleOnlyDisk[i].Name, want)
		}
	}
}

func TestSegmentKeyDistinguishesGeometry(t *testing.T) {
	// Same road name with different polylines must produce distinct keys.
	g1 := orb.LineString{{116.40, 39.90}, {116.41, 39.91}}
	g2 := orb.LineString{{116.40, 39.90}, {116.42, 39.92}}

	k1 := segment("Ring Road", StatusClear, g1).Key()
	k2 := segment("Ring Road", StatusClear, g2).Key()

	if k1 == k2 {
		t.Errorf("expected distinct keys for distinct geometry, both %v", k1)
	}

	// Status and speed do not participate in identity.
	speed := 42.0
	s3 := RoadSegment{Name: "Ring Road", Status: StatusJammed, Speed: &speed, Geometry: g1}
	if s3.Key() != k1 {
		t.Errorf("key should ignore status and speed: got %v, want %v", s3.Key(), k1)
	}
}

func TestPolylineSignaturePrecision(t *testing.T) {
	// Coordinates that differ only beyond the sixth decimal collapse to the
	// same signature.
	g1 := orb.LineString{{116.4000001, 39.9000001}}
	g2 := orb.LineString{{116.4000004, 39.9000004}}

	if PolylineSignature(g1) != PolylineSignature(g2) {
		t.Errorf("signatures differ: %q vs %q", PolylineSignature(g1), PolylineSignature(g2))
	}

	got := PolylineSignature(orb.LineString{{116.4, 39.9}, {116.41, 39.91}})
	want := "116.400000,39.900000;116.410000,39.910000"
	if got != want {
		t.Errorf("signature: got %q, want %q", got, want)
	}

	if PolylineSignature(nil) != "" {
		t.Errorf("empty line should have empty signature, got %q", PolylineSignature(nil))
	}
}

func TestNewDensityStat(t *testing.T) {
	stat := NewDensityStat("bus_station", 30, 3)

	wantArea := math.Pi * 9
	if math.Abs(stat.AreaKm2-wantArea) > 1e-9 {
		t.Errorf("AreaKm2: got %v, want %v", stat.AreaKm2, wantArea)
	}
	if math.Abs(stat.PerKm2-30/wantArea) > 1e-9 {
		t.Errorf("PerKm2: got %v, want %v", stat.PerKm2, 30/wantArea)
	}

	zero := NewDensityStat("metro", 5, 0)
	if zero.PerKm2 != 0 {
		t.Errorf("zero-radius density should be 0, got %v", zero.PerKm2)
	}
}
