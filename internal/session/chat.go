// Package session holds the per-connection protocol logic: chat routing and
// call signaling. A session owns no goroutines; its handler is invoked
// sequentially by the transport's read pump.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amrazz/z-chat/internal/store"
	"github.com/amrazz/z-chat/pkg/registry"
)

// Conn is the slice of the transport a session needs to reply to its own
// connection. *transport.Connection satisfies it, as does any registry.Member.
type Conn interface {
	ID() uuid.UUID
	Send(payload []byte) error
}

// ChatSession routes chat messages for one connection: validate, persist,
// then broadcast to the sender's and receiver's home groups. It keeps no
// state beyond the identity bound at connect time.
type ChatSession struct {
	conn       Conn
	registry   registry.GroupRegistry
	identities store.IdentityStore
	messages   store.MessageStore
	identity   store.Identity
	logger     *slog.Logger
}

func NewChatSession(conn Conn, reg registry.GroupRegistry, identities store.IdentityStore, messages store.MessageStore, identity store.Identity, logger *slog.Logger) *ChatSession {
	return &ChatSession{
		conn:       conn,
		registry:   reg,
		identities: identities,
		messages:   messages,
		identity:   identity,
		logger: logger.With(
			slog.String("component", "chat_session"),
			slog.Int64("userID", identity.ID),
		),
	}
}

// chatGroup is the home group key for a user: every session a user has open
// joins the same group, so one broadcast reaches all their devices.
func chatGroup(userID int64) string {
	return fmt.Sprintf("chat_%d", userID)
}

// Connect joins the authenticated user's home group.
func (s *ChatSession) Connect() {
	s.registry.Join(chatGroup(s.identity.ID), s.conn)
}

// Disconnect leaves the home group. Safe to call on an already-removed member.
func (s *ChatSession) Disconnect() {
	s.registry.Leave(chatGroup(s.identity.ID), s.conn)
}

// HandleMessage processes one inbound chat event to completion.
func (s *ChatSession) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	var in chatInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.logger.Warn("undecodable chat frame", slog.Any("error", err))
		s.replyError("Invalid message format: 'message' key required")
		return
	}

	if in.Message == nil {
		s.replyError("Invalid message format: 'message' key required")
		return
	}
	if in.ReceiverID == nil && in.Receiver == nil {
		s.replyError("Receiver not specified")
		return
	}

	sender, err := s.identities.FindIdentityByID(in.SenderID)
	if err != nil {
		s.logger.Warn("sender lookup failed", slog.Any("error", err))
		s.replyError("Failed to save message: " + err.Error())
		return
	}

	var receiver store.Identity
	if in.ReceiverID != nil {
		receiver, err = s.identities.FindIdentityByID(*in.ReceiverID)
	} else {
		receiver, err = s.identities.FindIdentityByName(*in.Receiver)
	}
	if err != nil {
		s.logger.Warn("receiver lookup failed", slog.Any("error", err))
		s.replyError("Failed to save message: " + err.Error())
		return
	}

	// Persist first; broadcast only on success.
	msg, err := s.messages.CreateMessage(sender, receiver, *in.Message)
	if err != nil {
		s.logger.Error("message persistence failed", slog.Any("error", err))
		s.replyError("Failed to save message: " + err.Error())
		return
	}

	payload, err := json.Marshal(chatDelivery{
		Message:    msg.Body,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Timestamp:  msg.Timestamp.Format(time.RFC3339Nano),
		MessageID:  msg.ID,
	})
	if err != nil {
		s.logger.Error("failed to marshal delivery event", slog.Any("error", err))
		return
	}

	// Both groups on purpose: the sender's other open sessions see the new
	// message through the same path as the receiver's.
	s.registry.Send(chatGroup(msg.SenderID), payload)
	s.registry.Send(chatGroup(msg.ReceiverID), payload)
}

func (s *ChatSession) replyError(detail string) {
	payload, err := json.Marshal(errorEvent{Error: detail})
	if err != nil {
		s.logger.Error("failed to marshal error event", slog.Any("error", err))
		return
	}
	if err := s.conn.Send(payload); err != nil {
		s.logger.Warn("could not deliver error event", slog.Any("error", err))
	}
}
