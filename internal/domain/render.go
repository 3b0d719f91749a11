package domain

import "github.com/google/uuid"

// Style is the visual appearance of a rendered overlay. The overlay manager
// caches the original style so a highlight can be reverted exactly.
type Style struct {
	Weight  float64 `json:"weight"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	ZIndex  int     `json:"z_index"`
}

// OverlayDescriptor describes one rendered road polyline, bound 1:1 to a
// RoadSegment for the duration of a query cycle.
type OverlayDescriptor struct {
	ID      uuid.UUID   `json:"id"`
	Segment RoadSegment `json:"segment"`
	Style   Style       `json:"style"`
}

// MarkerDescriptor describes one rendered POI marker.
type MarkerDescriptor struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	POI      POI       `json:"poi"`
}

// Renderer is the interface to the external rendering layer (the map UI).
// This follows the Dependency Inversion Principle - domain defines the
// interface, the delivery side implements it.
type Renderer interface {
	// AddLine draws a road polyline with the given style.
	AddLine(d OverlayDescriptor) error

	// SetLineStyle restyles an existing polyline, e.g. for highlight/restore.
	SetLineStyle(id uuid.UUID, style Style) error

	// RemoveLine removes a polyline.
	RemoveLine(id uuid.UUID) error

	// AddMarker draws a POI marker.
	AddMarker(m MarkerDescriptor) error

	// RemoveMarker removes a POI marker.
	RemoveMarker(id uuid.UUID) error
}
