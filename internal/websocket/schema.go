package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal   Action = "signal"
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape. Action selects which
// fields are meaningful.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`

	// submit
	Answers map[string]string `json:"answers,omitempty"`

	// signal
	Kind         string `json:"kind,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
	Clipboard    string `json:"clipboard,omitempty"`
	IsFullscreen bool   `json:"is_fullscreen,omitempty"`
	Key          string `json:"key,omitempty"`
	Ctrl         bool   `json:"ctrl,omitempty"`
	Meta         bool   `json:"meta,omitempty"`
	Alt          bool   `json:"alt,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventVerdict    Event = "verdict"
	EventGraded     Event = "graded"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
)

// VerdictResponse relays the policy engine's decision on a signal. The
// client applies the directives (suppress the browser default, re-enter
// fullscreen) and shows the updated counter.
type VerdictResponse struct {
	Event             Event  `json:"event"`
	Violation         string `json:"violation,omitempty"`
	Suppress          bool   `json:"suppress"`
	ReenterFullscreen bool   `json:"reenter_fullscreen"`
	ViolationCount    int    `json:"violation_count"`
	Terminated        bool   `json:"terminated"`
}

// SavedResponse acknowledges an autosave.
type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// GradedResponse carries the final grade after submit.
type GradedResponse struct {
	Event      Event   `json:"event"`
	Status     string  `json:"status"`
	Score      float64 `json:"score"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// TerminatedResponse tells the client the attempt is over.
type TerminatedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
