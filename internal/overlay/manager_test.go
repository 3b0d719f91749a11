package overlay

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/trafficpulse/livemap/internal/domain"
)

// recordingRenderer captures every draw call in order.
type recordingRenderer struct {
	mu    sync.Mutex
	calls []string
	style map[uuid.UUID]domain.Style
	fail  bool
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{style: make(map[uuid.UUID]domain.Style)}
}

func (r *recordingRenderer) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.fail {
		return errors.New("renderer down")
	}
	return nil
}

func (r *recordingRenderer) AddLine(d domain.OverlayDescriptor) error {
	err := r.record("add_line")
	if err == nil {
		r.mu.Lock()
		r.style[d.ID] = d.Style
		r.mu.Unlock()
	}
	return err
}

func (r *recordingRenderer) SetLineStyle(id uuid.UUID, style domain.Style) error {
	err := r.record("set_style")
	if err == nil {
		r.mu.Lock()
		r.style[id] = style
		r.mu.Unlock()
	}
	return err
}

func (r *recordingRenderer) RemoveLine(id uuid.UUID) error { return r.record("remove_line") }
func (r *recordingRenderer) AddMarker(d domain.MarkerDescriptor) error {
	return r.record("add_marker")
}
func (r *recordingRenderer) RemoveMarker(id uuid.UUID) error { return r.record("remove_marker") }

func (r *recordingRenderer) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recordingRenderer) styleOf(id uuid.UUID) domain.Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style[id]
}

func seg(name string, status domain.RoadStatus) domain.RoadSegment {
	return domain.RoadSegment{
		Name:     name,
		Status:   status,
		Geometry: orb.LineString{{116.40, 39.90}, {116.41, 39.91}},
	}
}

func TestSetSegmentsReleasesPreviousCycleFirst(t *testing.T) {
	r := newRecordingRenderer()
	m := NewManager(r, nil)

	first := m.SetSegments([]domain.RoadSegment{seg("A", domain.StatusClear), seg("B", domain.StatusSlow)})
	if len(first) != 2 {
		t.Fatalf("first cycle overlays: got %d, want 2", len(first))
	}
	m.AddMarkers("bus_stop", []domain.POI{{ID: "p1", Name: "Stop 1"}})

	second := m.SetSegments([]domain.RoadSegment{seg("C", domain.StatusJammed)})
	if len(second) != 1 {
		t.Fatalf("second cycle overlays: got %d, want 1", len(second))
	}

	// Release of the full previous cycle (2 lines + 1 marker) must complete
	// before the new line is added.
	want := []string{
		"add_line", "add_line", "add_marker",
		"remove_line", "remove_line", "remove_marker",
		"add_line",
	}
	got := r.callLog()
	if len(got) != len(want) {
		t.Fatalf("calls: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if overlays := m.Overlays(); len(overlays) != 1 || overlays[0].Segment.Name != "C" {
		t.Errorf("tracked overlays: got %+v", overlays)
	}
	if markers := m.Markers(); len(markers) != 0 {
		t.Errorf("markers should be gone, got %d", len(markers))
	}
}

func TestSetSegmentsSkipsShortGeometry(t *testing.T) {
	r := newRecordingRenderer()
	m := NewManager(r, nil)

	short := domain.RoadSegment{Name: "Dot", Status: domain.StatusClear, Geometry: orb.LineString{{116.4, 39.9}}}
	none := domain.RoadSegment{Name: "Bare", Status: domain.StatusSlow}

	out := m.SetSegments([]domain.RoadSegment{short, none, seg("Full", domain.StatusJammed)})
	if len(out) != 1 || out[0].Segment.Name != "Full" {
		t.Errorf("rendered: got %+v, want only Full", out)
	}
}

func TestHighlightSwitchRestoresPrevious(t *testing.T) {
	r := newRecordingRenderer()
	m := NewManager(r, nil)

	out := m.SetSegments([]domain.RoadSegment{seg("X", domain.StatusClear), seg("Y", domain.StatusJammed)})
	x, y := out[0], out[1]

	if err := m.Highlight(x.ID); err != nil {
		t.Fatalf("Highlight(x): %v", err)
	}
	if got := r.styleOf(x.ID); got != HighlightStyle(x.Style) {
		t.Errorf("x style after highlight: got %+v", got)
	}

	if err := m.Highlight(y.ID); err != nil {
		t.Fatalf("Highlight(y): %v", err)
	}
	// X back to its cached original before Y is amplified.
	if got := r.styleOf(x.ID); got != x.Style {
		t.Errorf("x style after switching highlight: got %+v, want original %+v", got, x.Style)
	}
	if got := r.styleOf(y.ID); got != HighlightStyle(y.Style) {
		t.Errorf("y style: got %+v", got)
	}
	if id, ok := m.Highlighted(); !ok || id != y.ID {
		t.Errorf("highlighted: got %v/%v, want y", id, ok)
	}

	if err := m.Restore(y.ID); err != nil {
		t.Fatalf("Restore(y): %v", err)
	}
	if got := r.styleOf(y.ID); got != y.Style {
		t.Errorf("y style after restore: got %+v, want original %+v", got, y.Style)
	}
	if _, ok := m.Highlighted(); ok {
		t.Error("highlight reference should be cleared after restore")
	}
}

func TestRestoreNonHighlightedKeepsReference(t *testing.T) {
	r := newRecordingRenderer()
	m := NewManager(r, nil)

	out := m.SetSegments([]domain.RoadSegment{seg("X", domain.StatusClear), seg("Y", domain.StatusSlow)})
	x, y := out[0], out[1]

	m.Highlight(x.ID)
	m.Restore(y.ID)

	if id, ok := m.Highlighted(); !ok || id != x.ID {
		t.Errorf("highlighted after restoring another overlay: got %v/%v, want x", id, ok)
	}
}

func TestHighlightUnknownOverlay(t *testing.T) {
	m := NewManager(newRecordingRenderer(), nil)

	if err := m.Highlight(uuid.New()); !errors.Is(err, ErrUnknownOverlay) {
		t.Errorf("Highlight unknown: got %v, want ErrUnknownOverlay", err)
	}
	if err := m.Restore(uuid.New()); !errors.Is(err, ErrUnknownOverlay) {
		t.Errorf("Restore unknown: got %v, want ErrUnknownOverlay", err)
	}
}

func TestClearTwiceIsNoop(t *testing.T) {
	r := newRecordingRenderer()
	m := NewManager(r, nil)

	m.SetSegments([]domain.RoadSegment{seg("A", domain.StatusClear)})
	m.AddMarkers("metro_station", []domain.POI{{ID: "m1", Name: "Line 2"}})
	m.Highlight(m.Overlays()[0].ID)

	m.Clear()
	released := len(r.callLog())

	m.Clear()
	if got := len(r.callLog()); got != released {
		t.Errorf("second Clear issued %d extra renderer calls", got-released)
	}

	if _, ok := m.Highlighted(); ok {
		t.Error("highlight should be cleared")
	}
	if len(m.Overlays()) != 0 || len(m.Markers()) != 0 {
		t.Error("overlays/markers should be empty after Clear")
	}
}

func TestRendererFailureSkipsOverlay(t *testing.T) {
	r := newRecordingRenderer()
	r.fail = true
	m := NewManager(r, nil)

	out := m.SetSegments([]domain.RoadSegment{seg("A", domain.StatusClear)})
	if len(out) != 0 {
		t.Errorf("descriptors for failed draws: got %d, want 0", len(out))
	}
	if len(m.Overlays()) != 0 {
		t.Error("failed draw must not be tracked")
	}
}
