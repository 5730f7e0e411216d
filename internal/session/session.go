// Package session runs the server-side exam lifecycle: one goroutine
// per active candidate owning the countdown, periodic persistence, and
// the lock protocol.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/policy"
	"github.com/proctorly/proctorly-backend/internal/scoring"
	"github.com/proctorly/proctorly-backend/internal/watch"
)

var (
	ErrLocked      = errors.New("session: exam is locked")
	ErrSubmitted   = errors.New("session: exam already submitted")
	ErrBadQuestion = errors.New("session: unknown question")
	ErrBadChoice   = errors.New("session: choice out of range")
	ErrBadPassword = errors.New("session: unlock password rejected")
	ErrNotLocked   = errors.New("session: exam is not locked")
	ErrTimeOver    = errors.New("session: exam time is over")
)

// Phase is the session lifecycle state. Submitted is terminal.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseLocked
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseLocked:
		return "locked"
	case PhaseSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Event types pushed to the candidate's client.
const (
	EventTick      = "tick"
	EventLocked    = "locked"
	EventUnlocked  = "unlocked"
	EventSubmitted = "submitted"
	EventSaved     = "saved"
	EventOvertime  = "overtime"
)

// Event is one push notification for the connected client.
type Event struct {
	Type        string          `json:"type"`
	RemainingMs int64           `json:"remainingMs,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Report      *scoring.Report `json:"report,omitempty"`
}

// Session is one candidate's in-progress exam. All exported methods are
// safe for concurrent use; the internal run loop owns teardown.
type Session struct {
	username string
	ip       string

	store docstore.Store
	pol   *policy.Policy
	sink  ResultSink
	cfg   Config
	log   zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	paper     []model.Question
	answers   map[string]int
	flags     map[string]bool
	cur       int
	endAt     time.Time
	// Remaining milliseconds captured when the exam locks. The clock
	// is frozen at this value until unlock, when endAt is recomputed
	// from it, so locked time never counts against the candidate.
	lockRemaining int64
	startedAt int64
	resumes   int
	settings  model.Settings
	overtime  bool
	blurTimer *time.Timer
	closed    bool

	events   chan Event
	remoteCh chan docstore.Fields
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	watcher  *watch.Handle
}

// Events returns the push channel for the connected client. It is
// closed when the session ends.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Username() string { return s.username }

// run is the session's single owner goroutine: countdown ticks,
// periodic saves, remote document changes, and final teardown.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	tick := time.NewTicker(s.cfg.TickInterval)
	save := time.NewTicker(s.cfg.SaveInterval)
	defer tick.Stop()
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardown(context.Background())
			return
		case <-s.stopCh:
			s.teardown(ctx)
			return
		case <-tick.C:
			s.onTick(ctx)
		case <-save.C:
			if s.persist(ctx) == nil {
				s.emit(Event{Type: EventSaved})
			}
		case doc := <-s.remoteCh:
			s.onRemote(doc)
		}
	}
}

// teardown runs exactly once, from the run loop. The watcher callback
// only does a non-blocking channel send, so stopping it here cannot
// deadlock against the session mutex.
func (s *Session) teardown(ctx context.Context) {
	if s.watcher != nil {
		s.watcher.Stop()
	}

	s.mu.Lock()
	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
	submitted := s.phase == PhaseSubmitted
	s.mu.Unlock()

	// A session torn down without an explicit submit (shutdown, client
	// gone) keeps its snapshot so the candidate can resume.
	if !submitted {
		if err := s.persist(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Final snapshot save failed")
		}
	}

	// Flip closed under the mutex so a straggling emit (a blur timer
	// that fired just before Stop, an unlock racing shutdown) cannot
	// send on the closed channel.
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.events)
}

func (s *Session) onTick(ctx context.Context) {
	s.mu.Lock()
	if s.phase == PhaseSubmitted || s.overtime {
		s.mu.Unlock()
		return
	}
	remaining := s.remainingLocked()
	expired := remaining <= 0
	allowAfter := s.settings.AllowAfterTime
	if expired && allowAfter {
		s.overtime = true
	}
	s.mu.Unlock()

	if !expired {
		s.emit(Event{Type: EventTick, RemainingMs: remaining})
		return
	}

	if allowAfter {
		// Countdown stops at zero but the exam stays open until the
		// candidate submits explicitly.
		s.emit(Event{Type: EventTick, RemainingMs: 0})
		s.emit(Event{Type: EventOvertime})
		return
	}

	if err := s.Submit(ctx, true); err != nil && !errors.Is(err, ErrSubmitted) {
		s.log.Error().Err(err).Msg("Auto-submit on expiry failed")
	}
}

// onRemote reconciles an externally-written session document with the
// in-memory state. Deliveries include this session's own writes, so the
// transitions compare state before acting.
func (s *Session) onRemote(doc docstore.Fields) {
	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		s.log.Debug().Err(err).Msg("Ignoring undecodable remote snapshot")
		return
	}

	s.mu.Lock()
	phase := s.phase
	var ev *Event
	switch {
	case snap.Locked && phase == PhaseRunning:
		s.lockRemaining = s.remainingLocked()
		s.phase = PhaseLocked
		ev = &Event{Type: EventLocked, Reason: snap.LockReason}
	case !snap.Locked && phase == PhaseLocked:
		s.phase = PhaseRunning
		s.endAt = time.Now().Add(time.Duration(s.lockRemaining) * time.Millisecond)
		ev = &Event{Type: EventUnlocked, Actor: snap.UnlockedBy}
	}
	s.mu.Unlock()

	if ev != nil {
		s.log.Info().Str("event", ev.Type).Msg("Remote lock state change applied")
		s.emit(*ev)
	}
}

// Answer records the candidate's choice for a question on the paper.
func (s *Session) Answer(questionID string, choice int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	q := s.findLocked(questionID)
	if q == nil {
		return ErrBadQuestion
	}
	if choice < 0 || choice >= len(q.Options) {
		return ErrBadChoice
	}
	s.answers[questionID] = choice
	return nil
}

// ToggleFlag flips the review marker on a question.
func (s *Session) ToggleFlag(questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if s.findLocked(questionID) == nil {
		return ErrBadQuestion
	}
	if s.flags[questionID] {
		delete(s.flags, questionID)
	} else {
		s.flags[questionID] = true
	}
	return nil
}

// Goto moves the candidate's position marker. Tracked only so the
// admin monitor can show where each candidate is.
func (s *Session) Goto(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.paper) {
		return ErrBadQuestion
	}
	s.cur = index
	return nil
}

// ReportExit is the client telling us focus left the exam (tab switch,
// window blur). The lock fires after a short grace so that a blur
// immediately followed by a focus, as some browsers emit during
// in-page dialogs, does not lock the exam.
func (s *Session) ReportExit(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseRunning {
		return
	}
	if s.blurTimer != nil {
		return
	}
	// The lock may fire after the triggering request is gone, so it
	// must not inherit that request's cancellation.
	s.blurTimer = time.AfterFunc(s.cfg.BlurGrace, func() {
		s.lock(context.Background(), reason)
	})
}

// ReportFocus cancels a pending blur lock.
func (s *Session) ReportFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
}

// Lock locks the exam immediately, bypassing the blur grace.
func (s *Session) Lock(ctx context.Context, reason string) {
	s.lock(ctx, reason)
}

func (s *Session) lock(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.lockRemaining = s.remainingLocked()
	s.phase = PhaseLocked
	s.blurTimer = nil
	s.mu.Unlock()

	if err := s.pol.Lock(ctx, s.username, reason); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist lock")
	}
	s.log.Info().Str("reason", reason).Msg("Exam locked")
	s.emit(Event{Type: EventLocked, Reason: reason})
}

// Unlock releases a lock if the password is accepted. The accepted
// passwords and the stamped actor are decided by policy.
func (s *Session) Unlock(ctx context.Context, password string) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitted {
		s.mu.Unlock()
		return ErrSubmitted
	}
	if s.phase != PhaseLocked {
		s.mu.Unlock()
		return ErrNotLocked
	}
	s.mu.Unlock()

	actor, ok := s.pol.UnlockAuthorized(ctx, s.username, password)
	if !ok {
		return ErrBadPassword
	}

	s.mu.Lock()
	if s.phase != PhaseLocked {
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseRunning
	s.endAt = time.Now().Add(time.Duration(s.lockRemaining) * time.Millisecond)
	s.mu.Unlock()

	if err := s.pol.Unlock(ctx, s.username, actor); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist unlock")
	}
	s.log.Info().Str("actor", actor).Msg("Exam unlocked")
	s.emit(Event{Type: EventUnlocked, Actor: actor})
	return nil
}

// Submit grades the paper, appends the encrypted result, clears the
// session document, and ends the session. Idempotent: a second call
// returns ErrSubmitted. auto marks expiry-driven submission.
func (s *Session) Submit(ctx context.Context, auto bool) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitted {
		s.mu.Unlock()
		return ErrSubmitted
	}
	s.phase = PhaseSubmitted
	if s.blurTimer != nil {
		s.blurTimer.Stop()
		s.blurTimer = nil
	}
	paper := s.paper
	answers := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.mu.Unlock()

	report := scoring.Grade(paper, answers)

	result := model.Result{
		Username:          s.username,
		TotalScorePercent: report.Percent,
		SectionScores:     report.SectionScores,
		Timestamp:         time.Now().UnixMilli(),
	}
	if err := s.sink.Append(ctx, result); err != nil {
		// The grade is lost if we also clear the snapshot, so keep the
		// document and surface the failure.
		s.log.Error().Err(err).Msg("Failed to append result")
		s.mu.Lock()
		s.phase = PhaseRunning
		s.mu.Unlock()
		return err
	}

	if err := s.clearSnapshot(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session document")
	}

	s.log.Info().Bool("auto", auto).Int("percent", report.Percent).Msg("Exam submitted")
	s.emit(Event{Type: EventSubmitted, Report: &report})
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Stop ends the run loop without submitting, preserving the snapshot
// for resume. Used on server shutdown and when the client disconnects.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// Snapshot captures the current state in the persisted document shape.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Paper returns the candidate-facing paper, correct answers stripped.
func (s *Session) Paper() []model.QuestionForCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.QuestionForCandidate, len(s.paper))
	for i, q := range s.paper {
		out[i] = q.ForCandidate()
	}
	return out
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RemainingMs returns milliseconds left on the fixed end timestamp.
func (s *Session) RemainingMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() int64 {
	if s.phase == PhaseLocked {
		return s.lockRemaining
	}
	remaining := time.Until(s.endAt).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Session) writableLocked() error {
	switch s.phase {
	case PhaseLocked:
		return ErrLocked
	case PhaseSubmitted:
		return ErrSubmitted
	}
	if !s.settings.AllowAfterTime && s.remainingLocked() <= 0 {
		return ErrTimeOver
	}
	return nil
}

func (s *Session) findLocked(questionID string) *model.Question {
	for i := range s.paper {
		if s.paper[i].ID == questionID {
			return &s.paper[i]
		}
	}
	return nil
}

func (s *Session) snapshotLocked() model.Snapshot {
	ids := make([]string, len(s.paper))
	for i, q := range s.paper {
		ids[i] = q.ID
	}
	answers := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	flags := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		flags[k] = v
	}
	return model.Snapshot{
		Username:    s.username,
		RemainingMs: s.remainingLocked(),
		UpdatedAt:   time.Now().UnixMilli(),
		StartedAt:   s.startedAt,
		Cur:         s.cur,
		PaperIDs:    ids,
		Answers:     answers,
		Flags:       flags,
		Locked:      s.phase == PhaseLocked,
		Resumes:     s.resumes,
		IP:          s.ip,
	}
}

// persist writes the current snapshot with merge semantics, plus the
// timer-only document older dashboards read.
func (s *Session) persist(ctx context.Context) error {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fields, err := docstore.Encode(snap)
	if err != nil {
		return err
	}
	// Lock fields are owned by the lock transitions; a periodic save
	// racing an admin unlock must not resurrect the lock.
	delete(fields, "locked")
	delete(fields, "lockReason")

	if err := s.store.SetMerge(ctx, config.ColSessions, s.username, fields); err != nil {
		return err
	}

	timer, err := docstore.Encode(model.TimerDoc{RemainingMs: snap.RemainingMs, UpdatedAt: snap.UpdatedAt})
	if err == nil {
		if err := s.store.Set(ctx, config.ColTimers, s.username, timer); err != nil {
			s.log.Debug().Err(err).Msg("Timer document save failed")
		}
	}
	return nil
}

// clearSnapshot resets the session document to the post-submit shape:
// nothing resumable, counters zeroed, unlock stamped to the system.
func (s *Session) clearSnapshot(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	fields := docstore.Fields{
		"remainingMs": json.RawMessage("0"),
		"paperIds":    json.RawMessage("[]"),
		"answers":     json.RawMessage("{}"),
		"flags":       json.RawMessage("{}"),
		"resumes":     json.RawMessage("0"),
		"locked":      json.RawMessage("false"),
		"lockReason":  json.RawMessage(`""`),
		"unlockedBy":  json.RawMessage(`"system"`),
		"updatedAt":   json.RawMessage(now),
	}
	if err := s.store.SetMerge(ctx, config.ColSessions, s.username, fields); err != nil {
		return err
	}
	timer, _ := docstore.Encode(model.TimerDoc{RemainingMs: 0, UpdatedAt: time.Now().UnixMilli()})
	if err := s.store.Set(ctx, config.ColTimers, s.username, timer); err != nil {
		s.log.Debug().Err(err).Msg("Timer document clear failed")
	}
	return nil
}

// emit pushes an event to the client channel without ever blocking the
// caller. A slow or absent client loses events; the next tick or state
// read catches it up.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug().Str("event", ev.Type).Msg("Event dropped, client channel full")
	}
}
