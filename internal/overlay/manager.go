package overlay

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/trafficpulse/livemap/internal/domain"
)

// ErrUnknownOverlay is returned when a highlight or restore names an overlay
// that is not currently rendered.
var ErrUnknownOverlay = errors.New("overlay: unknown id")

// line pairs a rendered polyline with the style it was created with, so a
// highlight can be reverted exactly.
type line struct {
	desc     domain.OverlayDescriptor
	original domain.Style
}

// Manager owns the rendered overlays and markers of one session. Every cycle
// replaces the full set: overlays from the previous cycle are released before
// new ones are created, so nothing leaks across cycles. One manager belongs
// to one reconciliation engine; all methods are safe for concurrent use.
type Manager struct {
	renderer domain.Renderer
	log      *slog.Logger

	mu          sync.Mutex
	lines       map[uuid.UUID]*line
	lineOrder   []uuid.UUID
	markers     map[uuid.UUID]domain.MarkerDescriptor
	markerOrder []uuid.UUID
	highlighted uuid.UUID
}

// NewManager creates an empty manager drawing through renderer.
func NewManager(renderer domain.Renderer, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		renderer: renderer,
		log:      log,
		lines:    make(map[uuid.UUID]*line),
		markers:  make(map[uuid.UUID]domain.MarkerDescriptor),
	}
}

// SetSegments replaces the rendered set: everything from the previous cycle
// (lines and markers) is released first, then one polyline is drawn per
// segment that carries at least two geometry points. Returns the descriptors
// actually rendered, in input order.
func (m *Manager) SetSegments(segments []domain.RoadSegment) []domain.OverlayDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	out := make([]domain.OverlayDescriptor, 0, len(segments))
	for _, seg := range segments {
		if len(seg.Geometry) < 2 {
			continue
		}
		style := StyleForStatus(seg.Status)
		d := domain.OverlayDescriptor{ID: uuid.New(), Segment: seg, Style: style}
		if err := m.renderer.AddLine(d); err != nil {
			m.log.Warn("overlay_add_failed", "road", seg.Name, "error", err)
			continue
		}
		m.lines[d.ID] = &line{desc: d, original: style}
		m.lineOrder = append(m.lineOrder, d.ID)
		out = append(out, d)
	}
	return out
}

// AddMarkers draws one marker per POI under the given category label. Markers
// live until the next SetSegments or Clear.
func (m *Manager) AddMarkers(category string, pois []domain.POI) []domain.MarkerDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.MarkerDescriptor, 0, len(pois))
	for _, poi := range pois {
		d := domain.MarkerDescriptor{ID: uuid.New(), Category: category, POI: poi}
		if err := m.renderer.AddMarker(d); err != nil {
			m.log.Warn("marker_add_failed", "poi", poi.Name, "error", err)
			continue
		}
		m.markers[d.ID] = d
		m.markerOrder = append(m.markerOrder, d.ID)
		out = append(out, d)
	}
	return out
}

// Highlight amplifies one overlay's stroke. A previously highlighted overlay
// is restored to its cached original style first; there is at most one
// highlighted overlay at a time.
func (m *Manager) Highlight(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.lines[id]
	if !ok {
		return ErrUnknownOverlay
	}

	if m.highlighted != uuid.Nil && m.highlighted != id {
		if prev, ok := m.lines[m.highlighted]; ok {
			m.restyleLocked(prev, prev.original)
		}
	}

	m.restyleLocked(target, HighlightStyle(target.original))
	m.highlighted = id
	return nil
}

// Restore reverts one overlay to its cached original style. If it was the
// highlighted one, the highlight reference is cleared.
func (m *Manager) Restore(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.lines[id]
	if !ok {
		return ErrUnknownOverlay
	}

	m.restyleLocked(target, target.original)
	if m.highlighted == id {
		m.highlighted = uuid.Nil
	}
	return nil
}

// Highlighted returns the id of the currently highlighted overlay and whether
// one exists.
func (m *Manager) Highlighted() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highlighted, m.highlighted != uuid.Nil
}

// Clear releases every overlay and marker. Clearing an already empty manager
// does nothing.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Overlays returns the rendered overlay descriptors in draw order.
func (m *Manager) Overlays() []domain.OverlayDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.OverlayDescriptor, 0, len(m.lineOrder))
	for _, id := range m.lineOrder {
		if l, ok := m.lines[id]; ok {
			out = append(out, l.desc)
		}
	}
	return out
}

// Markers returns the rendered marker descriptors in draw order.
func (m *Manager) Markers() []domain.MarkerDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.MarkerDescriptor, 0, len(m.markerOrder))
	for _, id := range m.markerOrder {
		if d, ok := m.markers[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// restyleLocked applies a style through the renderer and keeps the tracked
// descriptor in sync. Renderer failures are logged; the descriptor still
// records the intended style. Call with m.mu held.
func (m *Manager) restyleLocked(l *line, style domain.Style) {
	l.desc.Style = style
	if err := m.renderer.SetLineStyle(l.desc.ID, style); err != nil {
		m.log.Warn("overlay_restyle_failed", "id", l.desc.ID, "error", err)
	}
}

// releaseLocked removes every line and marker from the renderer and resets
// tracking state. Call with m.mu held.
func (m *Manager) releaseLocked() {
	for _, id := range m.lineOrder {
		if err := m.renderer.RemoveLine(id); err != nil {
			m.log.Warn("overlay_remove_failed", "id", id, "error", err)
		}
		delete(m.lines, id)
	}
	m.lineOrder = m.lineOrder[:0]

	for _, id := range m.markerOrder {
		if err := m.renderer.RemoveMarker(id); err != nil {
			m.log.Warn("marker_remove_failed", "id", id, "error", err)
		}
		delete(m.markers, id)
	}
	m.markerOrder = m.markerOrder[:0]

	m.highlighted = uuid.Nil
}
