package models

import "time"

// EventKind distinguishes the notifications a monitor emits.
type EventKind string

const (
	EventStatusChange EventKind = "status_change"
	EventSummary      EventKind = "summary"
)

// StatusChange is emitted when a service's status bucket differs from the
// previously recorded one. PreviousResult is nil for the first probe.
type StatusChange struct {
	Service        ServiceDescriptor `json:"service"`
	PreviousStatus Status            `json:"previous_status"`
	CurrentStatus  Status            `json:"current_status"`
	PreviousResult *HealthResult     `json:"previous_result,omitempty"`
	CurrentResult  HealthResult      `json:"current_result"`
}

// Event is the envelope delivered to monitor subscribers.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Change    *StatusChange `json:"change,omitempty"`
	Summary   *Summary      `json:"summary,omitempty"`
	EmittedAt time.Time     `json:"emitted_at"`
}
