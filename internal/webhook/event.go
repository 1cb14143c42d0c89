package webhook

import (
	"encoding/json"
	"fmt"
)

// EventStatusUpdated is sent whenever the processor changes a payment's state.
const EventStatusUpdated = "status_updated"

// Event is the webhook body. It is only parsed after the signature matched.
type Event struct {
	EventName        string `json:"event_name"`
	PaymentReference string `json:"payment_reference"`
	OrderReference   string `json:"order_reference"`
	// PaymentState is optional; the reconciler asks the processor for the current state anyway.
	PaymentState string `json:"payment_state,omitempty"`
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding webhook event: %w", err)
	}
	if ev.EventName == "" {
		return Event{}, fmt.Errorf("webhook event has no event_name")
	}
	return ev, nil
}
