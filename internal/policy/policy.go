// Package policy holds the lock and resume rules shared by the exam
// session engine and the admin monitor.
package policy

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

// Policy evaluates resume quotas and performs lock state transitions on
// the session documents.
type Policy struct {
	store docstore.Store
	rdb   *redis.Client
	cfg   *config.Config
	log   zerolog.Logger
}

// LockEvent is one entry of the lock audit trail, queued for durable
// archival.
type LockEvent struct {
	Username  string `json:"username"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Lock actions recorded in the audit trail.
const (
	ActionLocked   = "locked"
	ActionUnlocked = "unlocked"
)

func New(store docstore.Store, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *Policy {
	return &Policy{
		store: store,
		rdb:   rdb,
		cfg:   cfg,
		log:   log.With().Str("component", "policy").Logger(),
	}
}

// ResumeAllowed reports whether the candidate may resume a locked or
// interrupted exam. When resume is disabled in settings the quota does
// not apply. A failed read of the session document allows the resume:
// locking a candidate out because the store hiccuped is worse than one
// extra resume.
func (p *Policy) ResumeAllowed(ctx context.Context, username string, settings model.Settings) bool {
	if !settings.ResumeEnabled {
		return true
	}

	doc, err := p.store.Get(ctx, config.ColSessions, username)
	if err != nil {
		if err != docstore.ErrNotFound {
			p.log.Warn().Err(err).Str("username", username).Msg("Resume quota read failed, allowing")
		}
		return true
	}

	var snap model.Snapshot
	if err := docstore.Decode(doc, &snap); err != nil {
		p.log.Warn().Err(err).Str("username", username).Msg("Resume quota decode failed, allowing")
		return true
	}

	return snap.Resumes < settings.ResumeLimit()
}

// IncrementResumes bumps the resume counter on the session document.
// Read-modify-write: concurrent resumes of the same candidate could
// lose an increment, but the session manager serializes per-candidate
// operations so this does not occur in practice.
func (p *Policy) IncrementResumes(ctx context.Context, username string) (int, error) {
	doc, err := p.store.Get(ctx, config.ColSessions, username)
	if err != nil && err != docstore.ErrNotFound {
		return 0, err
	}

	resumes := 0
	if doc != nil {
		var snap model.Snapshot
		if err := docstore.Decode(doc, &snap); err == nil {
			resumes = snap.Resumes
		}
	}
	resumes++

	fields := docstore.Fields{
		"resumes":   json.RawMessage(strconv.Itoa(resumes)),
		"updatedAt": json.RawMessage(strconv.FormatInt(time.Now().UnixMilli(), 10)),
	}
	if err := p.store.SetMerge(ctx, config.ColSessions, username, fields); err != nil {
		return 0, err
	}
	return resumes, nil
}

// Lock marks the candidate's session document locked with the given
// reason and records the event.
func (p *Policy) Lock(ctx context.Context, username, reason string) error {
	now := time.Now().UnixMilli()
	fields := docstore.Fields{
		"locked":     json.RawMessage("true"),
		"lockReason": mustRaw(reason),
		"updatedAt":  json.RawMessage(strconv.FormatInt(now, 10)),
	}
	if err := p.store.SetMerge(ctx, config.ColSessions, username, fields); err != nil {
		return err
	}

	p.RecordEvent(ctx, LockEvent{
		Username:  username,
		Action:    ActionLocked,
		Reason:    reason,
		Timestamp: now,
	})
	return nil
}

// Unlock clears the lock on the candidate's session document and stamps
// who released it. actor is a username or "system".
func (p *Policy) Unlock(ctx context.Context, username, actor string) error {
	now := time.Now().UnixMilli()
	fields := docstore.Fields{
		"locked":     json.RawMessage("false"),
		"lockReason": json.RawMessage(`""`),
		"unlockedBy": mustRaw(actor),
		"unlockedAt": json.RawMessage(strconv.FormatInt(now, 10)),
		"updatedAt":  json.RawMessage(strconv.FormatInt(now, 10)),
	}
	if err := p.store.SetMerge(ctx, config.ColSessions, username, fields); err != nil {
		return err
	}

	p.RecordEvent(ctx, LockEvent{
		Username:  username,
		Action:    ActionUnlocked,
		Actor:     actor,
		Timestamp: now,
	})
	return nil
}

// UnlockAuthorized checks whether the supplied password may release a
// lock on username's session. Accepted in order: the master password,
// the admin password from the credentials document, and the candidate's
// own account password. Returns the actor to stamp on the unlock.
func (p *Policy) UnlockAuthorized(ctx context.Context, username, password string) (string, bool) {
	if password == "" {
		return "", false
	}

	if password == p.cfg.MasterPassword {
		return "master", true
	}

	if doc, err := p.store.Get(ctx, config.ColAdmin, config.AdminDocID); err == nil {
		var creds model.AdminCredentials
		if docstore.Decode(doc, &creds) == nil && creds.Password != "" && password == creds.Password {
			return "admin", true
		}
	}

	if doc, err := p.store.Get(ctx, config.ColUsers, username); err == nil {
		var user model.User
		if docstore.Decode(doc, &user) == nil && user.Password != "" && password == user.Password {
			return username, true
		}
	}

	return "", false
}

// RecordEvent queues a lock event for the archive worker. Best-effort:
// the audit trail must never block or fail an exam operation.
func (p *Policy) RecordEvent(ctx context.Context, ev LockEvent) {
	if p.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to marshal lock event")
		return
	}
	if err := p.rdb.RPush(ctx, config.WorkerKey.LockEventsQueue, payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("username", ev.Username).Msg("Failed to queue lock event")
	}
}

func mustRaw(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
