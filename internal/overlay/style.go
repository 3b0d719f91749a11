package overlay

import "github.com/trafficpulse/livemap/internal/domain"

// StyleForStatus returns the base drawing style for a road's congestion
// status. Jammed roads draw thicker and above clearer ones.
func StyleForStatus(s domain.RoadStatus) domain.Style {
	switch s {
	case domain.StatusClear:
		return domain.Style{Weight: 4, Color: "#4CAF50", Opacity: 0.8, ZIndex: 2}
	case domain.StatusSlow:
		return domain.Style{Weight: 5, Color: "#FF9800", Opacity: 0.85, ZIndex: 3}
	case domain.StatusJammed:
		return domain.Style{Weight: 6, Color: "#F44336", Opacity: 0.9, ZIndex: 4}
	default:
		return domain.Style{Weight: 3, Color: "#9E9E9E", Opacity: 0.6, ZIndex: 1}
	}
}

// HighlightStyle amplifies a base style for emphasis: double stroke weight,
// full opacity, drawn above everything else.
func HighlightStyle(s domain.Style) domain.Style {
	s.Weight *= 2
	s.Opacity = 1
	s.ZIndex += 100
	return s
}
