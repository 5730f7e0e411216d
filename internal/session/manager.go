package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/paper"
	"github.com/proctorly/proctorly-backend/internal/policy"
	"github.com/proctorly/proctorly-backend/internal/watch"
)

var (
	ErrAlreadyAttempted = errors.New("session: exam already attempted")
	ErrResumeLimit      = errors.New("session: resume limit reached")
	ErrEmptyPaper       = errors.New("session: no questions available")
)

// ResultSink receives graded results. Implemented by the result
// service; defined here so the engine does not depend on it.
type ResultSink interface {
	HasResult(ctx context.Context, username string) (bool, error)
	Append(ctx context.Context, result model.Result) error
}

// SettingsProvider supplies the exam configuration at session start.
type SettingsProvider interface {
	Current(ctx context.Context) model.Settings
}

// BankProvider loads the full question bank.
type BankProvider interface {
	Bank(ctx context.Context) ([]model.Question, error)
}

// Config holds the engine's timing knobs.
type Config struct {
	TickInterval time.Duration
	SaveInterval time.Duration
	BlurGrace    time.Duration
	PollInterval time.Duration
}

// DefaultConfig matches the cadence the browser client expects.
func DefaultConfig() Config {
	return Config{
		TickInterval: 500 * time.Millisecond,
		SaveInterval: 10 * time.Second,
		BlurGrace:    150 * time.Millisecond,
		PollInterval: watch.DefaultPollInterval,
	}
}

// Manager owns the registry of active sessions, one per candidate.
type Manager struct {
	store    docstore.Store
	pol      *policy.Policy
	sink     ResultSink
	settings SettingsProvider
	bank     BankProvider
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store docstore.Store, pol *policy.Policy, sink ResultSink, settings SettingsProvider, bank BankProvider, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		pol:      pol,
		sink:     sink,
		settings: settings,
		bank:     bank,
		cfg:      cfg,
		log:      log.With().Str("component", "session").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Start begins or resumes the candidate's exam. A candidate with a
// recorded result is refused. A resumable snapshot is picked up where
// it left off, counting against the resume quota; otherwise a fresh
// paper is drawn. declineResume discards an unlocked saved snapshot
// and starts over; a locked snapshot is always restored so starting
// fresh cannot bypass a lock.
func (m *Manager) Start(ctx context.Context, username, ip string, declineResume bool) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[username]; ok {
		m.mu.Unlock()
		// Same candidate reconnecting, e.g. after a page reload while
		// the server kept the session alive.
		return existing, nil
	}
	m.mu.Unlock()

	attempted, err := m.sink.HasResult(ctx, username)
	if err != nil {
		return nil, err
	}
	if attempted {
		return nil, ErrAlreadyAttempted
	}

	settings := m.settings.Current(ctx)
	bank, err := m.bank.Bank(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		username: username,
		ip:       ip,
		store:    m.store,
		pol:      m.pol,
		sink:     m.sink,
		cfg:      m.cfg,
		log:      m.log.With().Str("username", username).Logger(),
		answers:  make(map[string]int),
		flags:    make(map[string]bool),
		settings: settings,
		events:   make(chan Event, 32),
		remoteCh: make(chan docstore.Fields, 8),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	prior, resumed, err := m.restore(ctx, s, settings, bank, declineResume)
	if err != nil {
		return nil, err
	}
	if !resumed {
		if err := m.fresh(ctx, s, settings, bank); err != nil {
			return nil, err
		}
	} else if prior.Locked {
		s.lockRemaining = time.Until(s.endAt).Milliseconds()
		if s.lockRemaining < 0 {
			s.lockRemaining = 0
		}
		s.phase = PhaseLocked
	}

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[username]; ok {
		// Lost the race against a concurrent start for the same
		// candidate; use the winner.
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[username] = s
	m.mu.Unlock()

	s.watcher = watch.Start(context.Background(), m.store, config.ColSessions, username, m.cfg.PollInterval, s.log, func(doc docstore.Fields) {
		select {
		case s.remoteCh <- doc:
		default:
		}
	})
	go func() {
		s.run(context.Background())
		m.remove(username)
	}()

	m.log.Info().Str("username", username).Bool("resumed", resumed).Msg("Session started")
	return s, nil
}

// restore tries to pick up a saved snapshot. Returns resumed=false when
// there is nothing resumable or the candidate declined the resume.
func (m *Manager) restore(ctx context.Context, s *Session, settings model.Settings, bank []model.Question, declineResume bool) (model.Snapshot, bool, error) {
	doc, err := m.store.Get(ctx, config.ColSessions, s.username)
	if err != nil {
		if err == docstore.ErrNotFound {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}

	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		m.log.Warn().Err(err).Str("username", s.username).Msg("Unreadable saved session, starting fresh")
		return model.Snapshot{}, false, nil
	}
	if !snap.Resumable() {
		return model.Snapshot{}, false, nil
	}
	if declineResume && !snap.Locked {
		return model.Snapshot{}, false, nil
	}

	if !m.pol.ResumeAllowed(ctx, s.username, settings) {
		return model.Snapshot{}, false, ErrResumeLimit
	}

	restored := paper.Reconstruct(bank, snap.PaperIDs)
	if len(restored) == 0 {
		// The bank changed under the saved paper; nothing left to
		// resume against.
		m.log.Warn().Str("username", s.username).Msg("Saved paper no longer resolvable, starting fresh")
		return model.Snapshot{}, false, nil
	}

	resumes, err := m.pol.IncrementResumes(ctx, s.username)
	if err != nil {
		return model.Snapshot{}, false, err
	}

	remaining := snap.RemainingMs
	if limit := settings.DurationMs(); remaining > limit {
		remaining = limit
	}

	s.paper = restored
	s.resumes = resumes
	s.startedAt = snap.StartedAt
	s.cur = snap.Cur
	if s.cur >= len(restored) {
		s.cur = 0
	}
	s.endAt = time.Now().Add(time.Duration(remaining) * time.Millisecond)
	for id, choice := range snap.Answers {
		s.answers[id] = choice
	}
	for id, v := range snap.Flags {
		if v {
			s.flags[id] = true
		}
	}
	return snap, true, nil
}

// fresh draws a new paper and starts the clock from the full duration.
func (m *Manager) fresh(ctx context.Context, s *Session, settings model.Settings, bank []model.Question) error {
	drawn := paper.Build(bank, settings.Counts, settings.Shuffle, rand.New(rand.NewSource(time.Now().UnixNano())))
	if len(drawn) == 0 {
		return ErrEmptyPaper
	}

	s.paper = drawn
	s.startedAt = time.Now().UnixMilli()
	s.endAt = time.Now().Add(time.Duration(settings.DurationMs()) * time.Millisecond)
	return nil
}

// Get returns the active session for a candidate, if any.
func (m *Manager) Get(username string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	return s, ok
}

// Active returns the usernames with a live in-memory session.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	return names
}

func (m *Manager) remove(username string) {
	m.mu.Lock()
	delete(m.sessions, username)
	m.mu.Unlock()
}

// Shutdown stops every active session, persisting each snapshot so
// candidates can resume after a restart.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range active {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn().Msg("Shutdown timed out waiting for sessions")
	}
}
