package session

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/amrazz/z-chat/pkg/registry"
)

// CallSession is the per-connection state machine for WebRTC call signaling.
// A connection starts anonymous; the login event binds a display name and
// joins the registry under it, after which the session is a stateless relay.
// Two sessions logging in under the same name share a group; that is how
// multi-device presence works and is not rejected here.
type CallSession struct {
	conn     Conn
	registry registry.GroupRegistry
	logger   *slog.Logger

	// name is empty until a successful login.
	name string
}

func NewCallSession(conn Conn, reg registry.GroupRegistry, logger *slog.Logger) *CallSession {
	return &CallSession{
		conn:     conn,
		registry: reg,
		logger: logger.With(
			slog.String("component", "call_session"),
			slog.String("connID", conn.ID().String()),
		),
	}
}

// Connect greets the client so it knows the signaling channel is live.
func (s *CallSession) Connect() {
	s.reply(EventConnection, map[string]any{"message": "connected"})
}

// Disconnect removes a logged-in session from its name group. Anonymous
// sessions need no cleanup.
func (s *CallSession) Disconnect() {
	if s.name == "" {
		return
	}
	s.registry.Leave(s.name, s.conn)
}

// HandleMessage dispatches one inbound signaling event. Malformed events are
// dropped with a local log and no reply; events other than login from an
// anonymous connection are rejected with an error event.
func (s *CallSession) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	typeField := gjson.GetBytes(raw, "type")
	if !typeField.Exists() {
		s.logger.Warn("dropping signaling event without type")
		return
	}
	eventType := CallEventType(typeField.String())

	if s.name == "" && eventType != EventLogin {
		s.logger.Warn("rejecting pre-login event", slog.String("type", string(eventType)))
		s.reply(EventError, map[string]any{"message": "login required"})
		return
	}

	switch eventType {
	case EventLogin:
		s.handleLogin(raw)
	case EventCall:
		s.handleCall(raw)
	case EventAnswerCall:
		s.handleAnswerCall(raw)
	case EventICECandidate:
		s.handleICECandidate(raw)
	case EventEndCall:
		s.handleEndCall(raw)
	default:
		s.logger.Warn("dropping unknown signaling event", slog.String("type", string(eventType)))
	}
}

func (s *CallSession) handleLogin(raw []byte) {
	name := gjson.GetBytes(raw, "data.name")
	if !name.Exists() || name.String() == "" {
		s.logger.Warn("dropping login without data.name")
		return
	}

	// A second login re-binds the name; the old group membership would
	// otherwise leak until disconnect.
	if s.name != "" && s.name != name.String() {
		s.registry.Leave(s.name, s.conn)
	}
	s.name = name.String()
	s.registry.Join(s.name, s.conn)
	s.logger.Info("call participant logged in", slog.String("name", s.name))

	s.reply(EventLoginSuccess, map[string]any{"name": s.name})
}

func (s *CallSession) handleCall(raw []byte) {
	callee := gjson.GetBytes(raw, "data.name")
	rtc := gjson.GetBytes(raw, "data.rtcMessage")
	if !callee.Exists() || !rtc.Exists() {
		s.logger.Warn("dropping call event with missing fields")
		return
	}

	s.broadcast(callee.String(), EventCallReceived, map[string]any{
		"caller":     s.name,
		"rtcMessage": json.RawMessage(rtc.Raw),
	})
	s.reply(EventCallSent, map[string]any{"to": callee.String()})
}

func (s *CallSession) handleAnswerCall(raw []byte) {
	caller := gjson.GetBytes(raw, "data.caller")
	rtc := gjson.GetBytes(raw, "data.rtcMessage")
	if !caller.Exists() || !rtc.Exists() {
		s.logger.Warn("dropping answer_call event with missing fields")
		return
	}

	s.broadcast(caller.String(), EventCallAnswered, map[string]any{
		"rtcMessage": json.RawMessage(rtc.Raw),
	})
}

func (s *CallSession) handleICECandidate(raw []byte) {
	user := gjson.GetBytes(raw, "data.user")
	rtc := gjson.GetBytes(raw, "data.rtcMessage")
	if !user.Exists() || !rtc.Exists() {
		s.logger.Warn("dropping ICEcandidate event with missing fields")
		return
	}

	s.broadcast(user.String(), EventICECandidate, map[string]any{
		"rtcMessage": json.RawMessage(rtc.Raw),
	})
}

func (s *CallSession) handleEndCall(raw []byte) {
	user := gjson.GetBytes(raw, "data.user")
	if user.Exists() {
		s.broadcast(user.String(), EventCallEnded, map[string]any{"from": s.name})
		return
	}
	// No target: notify the caller's own group, which reaches any other
	// sessions logged in under the same name.
	s.broadcast(s.name, EventCallEnded, nil)
}

// reply sends an event to this session's own connection.
func (s *CallSession) reply(t CallEventType, data map[string]any) {
	payload, err := encodeCallEvent(t, data)
	if err != nil {
		s.logger.Error("failed to marshal signaling event", slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	if err := s.conn.Send(payload); err != nil {
		s.logger.Warn("could not deliver signaling event", slog.String("type", string(t)), slog.Any("error", err))
	}
}

// broadcast fans an event out to a named group.
func (s *CallSession) broadcast(group string, t CallEventType, data map[string]any) {
	payload, err := encodeCallEvent(t, data)
	if err != nil {
		s.logger.Error("failed to marshal signaling event", slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	s.registry.Send(group, payload)
}
