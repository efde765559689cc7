package domain

// ActionKind is the category a model response is classified into.
type ActionKind string

const (
	ActionThink       ActionKind = "THINK"
	ActionCode        ActionKind = "CODE"
	ActionFinalAnswer ActionKind = "FINAL_ANSWER"
	ActionUnknown     ActionKind = "UNKNOWN"
)

// Action is the single classified action of a round. It is never modified
// after creation.
type Action struct {
	Round int        `json:"round"`
	Kind  ActionKind `json:"kind"`
	Raw   string     `json:"raw"`
}
