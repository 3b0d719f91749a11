package domain

import (
	"encoding/json"
	"time"
)

// EventType tags an inbound frame from the event source.
type EventType string

// Frame types pushed by the event source. Unknown tags are dispatched to no
// one and are not an error.
const (
	EventSubscriptionConfirmed EventType = "subscription_confirmed"
	EventPong                  EventType = "pong"
	EventTrafficUpdate         EventType = "traffic_update"
	EventTrafficUpdateEvents   EventType = "traffic_update_with_events"
	EventNewData               EventType = "new_data"
	EventTrainingCompleted     EventType = "model_training_completed"
	EventTrainingFailed        EventType = "model_training_failed"
	EventError                 EventType = "error"
)

// InboundEvent is one decoded frame. Events are ephemeral: produced per
// received frame, consumed synchronously by dispatch, never stored.
type InboundEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Raw is the whole frame; confirmation-style frames carry their fields
	// at the top level rather than under "data".
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"-"`
}

// DecodeData unmarshals the frame's data member (falling back to the whole
// frame when the source inlined the payload) into v.
func (e InboundEvent) DecodeData(v any) error {
	raw := e.Data
	if len(raw) == 0 {
		raw = e.Raw
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// LngLat is a longitude/latitude pair in the provider's coordinate order.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// SubscribeFrame is the outbound subscription request.
type SubscribeFrame struct {
	Type     string `json:"type"`
	Location LngLat `json:"location"`
}

// NewSubscribeFrame builds the subscribe frame for a location.
func NewSubscribeFrame(loc LngLat) SubscribeFrame {
	return SubscribeFrame{Type: "subscribe", Location: loc}
}

// PingFrame is the outbound heartbeat. The source answers with a pong frame
// but this side does not require one.
type PingFrame struct {
	Type string `json:"type"`
}

// NewPingFrame builds the heartbeat frame.
func NewPingFrame() PingFrame {
	return PingFrame{Type: "ping"}
}

// SubscriptionConfirmed is the payload of EventSubscriptionConfirmed frames.
type SubscriptionConfirmed struct {
	Location  LngLat `json:"location"`
	Timestamp string `json:"timestamp"`
}

// TrafficUpdatePoint is one entry of an EventTrafficUpdate frame.
type TrafficUpdatePoint struct {
	Timestamp       string  `json:"timestamp"`
	Location        LngLat  `json:"location"`
	CongestionRatio float64 `json:"congestion_ratio"`
	AvgSpeed        float64 `json:"avg_speed"`
	QualityScore    float64 `json:"data_quality_score"`
	IsAnomaly       bool    `json:"is_anomaly"`
}
