package overlay

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/trafficpulse/livemap/internal/domain"
)

// LogRenderer implements domain.Renderer by logging draw calls. It stands in
// for the external map layer when the service runs headless.
type LogRenderer struct {
	log *slog.Logger
}

// NewLogRenderer creates a renderer that logs at debug level.
func NewLogRenderer(log *slog.Logger) *LogRenderer {
	if log == nil {
		log = slog.Default()
	}
	return &LogRenderer{log: log}
}

var _ domain.Renderer = (*LogRenderer)(nil)

func (r *LogRenderer) AddLine(d domain.OverlayDescriptor) error {
	r.log.Debug("render_add_line",
		"id", d.ID,
		"road", d.Segment.Name,
		"status", d.Segment.Status.String(),
		"points", len(d.Segment.Geometry),
	)
	return nil
}

func (r *LogRenderer) SetLineStyle(id uuid.UUID, style domain.Style) error {
	r.log.Debug("render_set_style", "id", id, "weight", style.Weight, "color", style.Color)
	return nil
}

func (r *LogRenderer) RemoveLine(id uuid.UUID) error {
	r.log.Debug("render_remove_line", "id", id)
	return nil
}

func (r *LogRenderer) AddMarker(d domain.MarkerDescriptor) error {
	r.log.Debug("render_add_marker", "id", d.ID, "category", d.Category, "poi", d.POI.Name)
	return nil
}

func (r *LogRenderer) RemoveMarker(id uuid.UUID) error {
	r.log.Debug("render_remove_marker", "id", id)
	return nil
}
