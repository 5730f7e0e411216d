package model

// Snapshot is the remote-persisted projection of an in-memory exam
// session, written with merge semantics to sessions/{username}. It is
// the single document both the candidate's client and the admin
// monitor observe for lock coordination.
//
// UpdatedAt must strictly increase on every write; the store adapter
// enforces this. Staleness of UpdatedAt is the only signal the monitor
// uses to infer "offline".
type Snapshot struct {
	Username    string          `json:"username,omitempty"`
	RemainingMs int64           `json:"remainingMs"`
	UpdatedAt   int64           `json:"updatedAt"`
	StartedAt   int64           `json:"startedAt"`
	Cur         int             `json:"cur"`
	PaperIDs    []string        `json:"paperIds"`
	Answers     map[string]int  `json:"answers"`
	Flags       map[string]bool `json:"flags"`
	Locked      bool            `json:"locked"`
	LockReason  string          `json:"lockReason,omitempty"`
	Resumes     int             `json:"resumes"`
	IP          string          `json:"ip,omitempty"`
	UnlockedBy  string          `json:"unlockedBy,omitempty"`
	UnlockedAt  int64           `json:"unlockedAt,omitempty"`
}

// Resumable reports whether the snapshot still describes an exam that
// can be picked up again. Submission clears the resumable fields, so a
// submitted exam never satisfies this.
func (s Snapshot) Resumable() bool {
	return len(s.PaperIDs) > 0 && s.RemainingMs > 0
}

// TimerDoc is the secondary timer-only snapshot written to
// timers/{username}, kept for compatibility with older clients that
// only read the countdown.
type TimerDoc struct {
	RemainingMs int64 `json:"remainingMs"`
	UpdatedAt   int64 `json:"updatedAt"`
}
