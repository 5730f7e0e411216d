package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/middleware"
	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/session"
	ws "github.com/proctorly/proctorly-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// safeConn serializes writes; gorilla permits one concurrent writer,
// and here both the event forwarder and the action acks write.
type safeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *safeConn) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

func (s *safeConn) writeError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.WriteError(s.conn, msg)
}

// WSHandler streams the live exam exchange: actions in, ticks and lock
// state out.
type WSHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exam
// Upgrades to WebSocket. The candidate must have started the exam over
// REST first; the socket attaches to the running session.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	s, ok := h.manager.Get(claims.Username)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no exam in progress"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	conn := &safeConn{conn: raw}

	wsLog := h.log.With().Str("username", claims.Username).Logger()
	wsLog.Info().Msg("Candidate connected")

	// Forward engine events in their own goroutine so a tick is never
	// stuck behind a slow client read.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range s.Events() {
			if err := writeEvent(conn, ev); err != nil {
				wsLog.Debug().Err(err).Msg("Event write failed")
				return
			}
			if ev.Type == session.EventSubmitted {
				return
			}
		}
	}()

	for {
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			conn.writeError("malformed message")
			continue
		}

		h.dispatch(c.Request.Context(), conn, wsLog, s, envelope.Action, payload)
	}

	// The client dropping the socket mid-exam counts as leaving the
	// page; the blur grace handles the reconnect-after-refresh case.
	if s.Phase() == session.PhaseRunning {
		s.ReportExit("disconnect")
	}

	<-done
	wsLog.Info().Msg("Candidate disconnected")
}

// dispatch runs one client action against the session.
func (h *WSHandler) dispatch(ctx context.Context, conn *safeConn, wsLog zerolog.Logger, s *session.Session, action ws.Action, payload []byte) {
	switch action {
	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError("malformed answer")
			return
		}
		h.ack(conn, action, s.Answer(req.QuestionID, req.Choice))

	case ws.ActionFlag:
		var req ws.FlagRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError("malformed flag")
			return
		}
		h.ack(conn, action, s.ToggleFlag(req.QuestionID))

	case ws.ActionNav:
		var req ws.NavRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError("malformed nav")
			return
		}
		h.ack(conn, action, s.Goto(req.Index))

	case ws.ActionLeave:
		var req ws.LeaveRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError("malformed leave")
			return
		}
		s.ReportExit(req.Reason)

	case ws.ActionFocus:
		s.ReportFocus()

	case ws.ActionUnlock:
		var req ws.UnlockRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError("malformed unlock")
			return
		}
		h.ack(conn, action, s.Unlock(ctx, req.Password))

	case ws.ActionSubmit:
		if err := s.Submit(ctx, false); err != nil && !errors.Is(err, session.ErrSubmitted) {
			conn.writeError(actionErrMessage(err))
		}
		// The submitted event with the report arrives through the
		// event channel; the forwarder exits after sending it.

	case ws.ActionPing:
		conn.write(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
		conn.writeError("unknown action: " + string(action))
	}
}

// ack confirms or rejects a state-changing action on the same socket.
func (h *WSHandler) ack(conn *safeConn, action ws.Action, err error) {
	if err != nil {
		conn.writeError(actionErrMessage(err))
		return
	}
	conn.write(ws.AckResponse{Event: ws.EventAck, Action: action})
}

// actionErrMessage maps engine errors onto the shared error-code
// messages so the socket and the REST API speak the same language.
func actionErrMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrLocked):
		return response.GetMessage(response.ErrExamLocked)
	case errors.Is(err, session.ErrNotLocked):
		return response.GetMessage(response.ErrExamNotLocked)
	case errors.Is(err, session.ErrSubmitted):
		return response.GetMessage(response.ErrExamSubmitted)
	case errors.Is(err, session.ErrTimeOver):
		return response.GetMessage(response.ErrExamTimeOver)
	case errors.Is(err, session.ErrBadPassword):
		return response.GetMessage(response.ErrUnlockDenied)
	default:
		return err.Error()
	}
}

// writeEvent maps an engine event onto the wire schema.
func writeEvent(conn *safeConn, ev session.Event) error {
	switch ev.Type {
	case session.EventTick:
		return conn.write(ws.TickResponse{Event: ws.EventTick, RemainingMs: ev.RemainingMs})
	case session.EventLocked:
		return conn.write(ws.LockedResponse{Event: ws.EventLocked, Reason: ev.Reason})
	case session.EventUnlocked:
		return conn.write(ws.UnlockedResponse{Event: ws.EventUnlocked, Actor: ev.Actor})
	case session.EventSubmitted:
		resp := ws.SubmittedResponse{Event: ws.EventSubmitted, SectionScores: map[string]int{}}
		if ev.Report != nil {
			resp.Percent = ev.Report.Percent
			for cat, score := range ev.Report.SectionScores {
				resp.SectionScores[string(cat)] = score
			}
		}
		return conn.write(resp)
	case session.EventSaved:
		return conn.write(ws.AckResponse{Event: ws.EventSaved, Action: ""})
	case session.EventOvertime:
		return conn.write(ws.TickResponse{Event: ws.EventOvertime, RemainingMs: 0})
	default:
		return nil
	}
}
