package domain

// Event names emitted by the loop controller.
const (
	EventPlanDelta  = "tabloop.plan.delta"
	EventPlanDone   = "tabloop.plan.done"
	EventTaskStart  = "tabloop.task.start"
	EventTaskDelta  = "tabloop.task.delta"
	EventTaskDone   = "tabloop.task.done"
	EventForceStart = "tabloop.force.start"
	EventForceDelta = "tabloop.force.delta"
)

// EventPayload is the body of a lifecycle event.
type EventPayload struct {
	Type      string `json:"type"`
	Operation string `json:"operation,omitempty"`
	Content   string `json:"content,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Clean     bool   `json:"clean,omitempty"`
	Round     int    `json:"round,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Event is a named payload, as delivered to sinks that buffer or forward events.
type Event struct {
	Name    string       `json:"name"`
	Payload EventPayload `json:"payload"`
}
