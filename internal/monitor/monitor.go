// Package monitor is the admin's live view over candidate sessions.
package monitor

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/policy"
)

// Entry is one candidate row on the monitor board.
type Entry struct {
	Username    string `json:"username"`
	RemainingMs int64  `json:"remainingMs"`
	Cur         int    `json:"cur"`
	Answered    int    `json:"answered"`
	Total       int    `json:"total"`
	Locked      bool   `json:"locked"`
	LockReason  string `json:"lockReason,omitempty"`
	Resumes     int    `json:"resumes"`
	IP          string `json:"ip,omitempty"`
	Online      bool   `json:"online"`
	Submitted   bool   `json:"submitted"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Monitor reads session documents and applies admin actions through
// the shared lock policy.
type Monitor struct {
	store      docstore.Store
	pol        *policy.Policy
	staleAfter time.Duration
	log        zerolog.Logger
}

func New(store docstore.Store, pol *policy.Policy, staleAfter time.Duration, log zerolog.Logger) *Monitor {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Second
	}
	return &Monitor{
		store:      store,
		pol:        pol,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "monitor").Logger(),
	}
}

// List returns every known session, ordered by username. A candidate
// whose document has not been touched within the staleness window is
// shown offline; document age is the only liveness signal available.
func (m *Monitor) List(ctx context.Context) ([]Entry, error) {
	docs, err := m.store.GetAll(ctx, config.ColSessions)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-m.staleAfter).UnixMilli()
	entries := make([]Entry, 0, len(docs))
	for id, doc := range docs {
		var snap model.Snapshot
		if err := docstore.Decode(doc, &snap); err != nil {
			m.log.Debug().Err(err).Str("doc_id", id).Msg("Skipping undecodable session document")
			continue
		}
		username := snap.Username
		if username == "" {
			username = id
		}

		answered := 0
		for _, choice := range snap.Answers {
			if choice >= 0 {
				answered++
			}
		}

		entries = append(entries, Entry{
			Username:    username,
			RemainingMs: snap.RemainingMs,
			Cur:         snap.Cur,
			Answered:    answered,
			Total:       len(snap.PaperIDs),
			Locked:      snap.Locked,
			LockReason:  snap.LockReason,
			Resumes:     snap.Resumes,
			IP:          snap.IP,
			Online:      snap.UpdatedAt >= cutoff,
			Submitted:   !snap.Resumable() && snap.UnlockedBy == "system",
			UpdatedAt:   snap.UpdatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	return entries, nil
}

// Unlock releases a candidate's lock on the admin's authority. The
// candidate's session observes the document change and resumes.
func (m *Monitor) Unlock(ctx context.Context, username string) error {
	m.log.Info().Str("username", username).Msg("Admin unlock")
	return m.pol.Unlock(ctx, username, "admin")
}

// EnableResume grants a fresh set of resume attempts and clears any
// lock, for a candidate who exhausted the quota legitimately.
func (m *Monitor) EnableResume(ctx context.Context, username string) error {
	now := time.Now().UnixMilli()
	fields := docstore.Fields{
		"resumes":    json.RawMessage("0"),
		"locked":     json.RawMessage("false"),
		"lockReason": json.RawMessage(`""`),
		"unlockedBy": json.RawMessage(`"admin"`),
		"unlockedAt": json.RawMessage(strconv.FormatInt(now, 10)),
		"updatedAt":  json.RawMessage(strconv.FormatInt(now, 10)),
	}
	m.log.Info().Str("username", username).Msg("Admin reset resume quota")
	return m.store.SetMerge(ctx, config.ColSessions, username, fields)
}

// Clear wipes a candidate's progress so they can start over. The
// account and any recorded result are untouched.
func (m *Monitor) Clear(ctx context.Context, username string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	fields := docstore.Fields{
		"remainingMs": json.RawMessage("0"),
		"paperIds":    json.RawMessage("[]"),
		"answers":     json.RawMessage("{}"),
		"flags":       json.RawMessage("{}"),
		"resumes":     json.RawMessage("0"),
		"locked":      json.RawMessage("false"),
		"lockReason":  json.RawMessage(`""`),
		"updatedAt":   json.RawMessage(now),
	}
	if err := m.store.SetMerge(ctx, config.ColSessions, username, fields); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, config.ColTimers, username); err != nil {
		m.log.Debug().Err(err).Str("username", username).Msg("Timer document delete failed")
	}
	m.log.Info().Str("username", username).Msg("Admin cleared session")
	return nil
}

// Delete removes the candidate's session and timer documents entirely.
func (m *Monitor) Delete(ctx context.Context, username string) error {
	if err := m.store.Delete(ctx, config.ColSessions, username); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, config.ColTimers, username); err != nil {
		m.log.Debug().Err(err).Str("username", username).Msg("Timer document delete failed")
	}
	m.log.Info().Str("username", username).Msg("Admin deleted session")
	return nil
}
