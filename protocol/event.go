package protocol

import (
	"encoding/json"
	"fmt"
)

// Event type discriminators.
const (
	EventTick    = "tick"
	EventSettled = "settled"
)

// Event is one engine → controller message.
type Event interface {
	// Type returns the wire discriminator.
	Type() string
}

// TickEvent is a periodic position snapshot. Positions is a flat buffer of
// 2×nodeCount coordinates ordered by node index, x then y, with non-finite
// values already sanitized to 0. Ownership of the buffer transfers to the
// receiver: the engine allocates a fresh buffer per snapshot and never
// touches one after emitting it.
type TickEvent struct {
	Positions []float64 `json:"positions"`
	Alpha     float64   `json:"alpha"`
}

// SettledEvent signals that alpha decayed below the convergence threshold.
// The final full snapshot was emitted as the immediately preceding tick.
type SettledEvent struct {
	Alpha float64 `json:"alpha"`
}

func (TickEvent) Type() string    { return EventTick }
func (SettledEvent) Type() string { return EventSettled }

// MarshalEvent encodes an event as its JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case TickEvent:
		return marshalEnvelope(EventTick, ev)
	case SettledEvent:
		return marshalEnvelope(EventSettled, ev)
	default:
		return nil, fmt.Errorf("MarshalEvent: unsupported event %T", e)
	}
}

// UnmarshalEvent decodes a JSON envelope into its concrete event.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("UnmarshalEvent: %w", err)
	}

	switch head.Type {
	case EventTick:
		var ev TickEvent
		if err := unmarshalBody(data, head.Type, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventSettled:
		var ev SettledEvent
		if err := unmarshalBody(data, head.Type, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("UnmarshalEvent: unknown event type %q", head.Type)
	}
}
