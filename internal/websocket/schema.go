package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFlag   Action = "flag"
	ActionNav    Action = "nav"
	ActionLeave  Action = "leave"
	ActionFocus  Action = "focus"
	ActionUnlock Action = "unlock"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records the selected option for one question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"q_id"`
	Choice     int    `json:"choice"`
}

// FlagRequest toggles the review marker on a question.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"q_id"`
}

// NavRequest moves the candidate's position marker.
type NavRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// LeaveRequest reports that focus left the exam page.
type LeaveRequest struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// UnlockRequest asks to release a lock with a password.
type UnlockRequest struct {
	Action   Action `json:"action"`
	Password string `json:"password"`
}

// SubmitRequest finishes and grades the exam.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = "tick"
	EventLocked    Event = "locked"
	EventUnlocked  Event = "unlocked"
	EventSubmitted Event = "submitted"
	EventSaved     Event = "saved"
	EventOvertime  Event = "overtime"
	EventError     Event = "error"
	EventAck       Event = "ack"
	EventPong      Event = "pong"
)

// TickResponse carries the authoritative countdown.
type TickResponse struct {
	Event       Event `json:"event"`
	RemainingMs int64 `json:"remainingMs"`
}

// LockedResponse tells the client its exam is locked.
type LockedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// UnlockedResponse tells the client the lock was released.
type UnlockedResponse struct {
	Event Event  `json:"event"`
	Actor string `json:"actor,omitempty"`
}

// SubmittedResponse carries the graded outcome.
type SubmittedResponse struct {
	Event         Event          `json:"event"`
	Percent       int            `json:"percent"`
	SectionScores map[string]int `json:"sectionScores"`
}

// AckResponse confirms a state-changing action.
type AckResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
