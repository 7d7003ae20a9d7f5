package session

import "encoding/json"

// Inbound chat frame. Pointer fields distinguish an absent key from a zero
// value, which the validation rules depend on.
type chatInbound struct {
	Message        *string `json:"message"`
	SenderID       int64   `json:"sender_id"`
	SenderUsername string  `json:"sender_username"`
	ReceiverID     *int64  `json:"receiver_id"`
	Receiver       *string `json:"receiver"`
}

// Canonical delivery event broadcast to both participants' groups.
type chatDelivery struct {
	Message    string `json:"message"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Timestamp  string `json:"timestamp"`
	MessageID  string `json:"message_id"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// CallEventType is the closed set of call-signaling event tags.
type CallEventType string

const (
	// inbound
	EventLogin        CallEventType = "login"
	EventCall         CallEventType = "call"
	EventAnswerCall   CallEventType = "answer_call"
	EventICECandidate CallEventType = "ICEcandidate"
	EventEndCall      CallEventType = "end_call"

	// outbound
	EventConnection   CallEventType = "connection"
	EventLoginSuccess CallEventType = "login_success"
	EventCallSent     CallEventType = "call_sent"
	EventCallReceived CallEventType = "call_received"
	EventCallAnswered CallEventType = "call_answered"
	EventCallEnded    CallEventType = "call_ended"
	EventError        CallEventType = "error"
)

type callEnvelope struct {
	Type CallEventType  `json:"type"`
	Data map[string]any `json:"data"`
}

func encodeCallEvent(t CallEventType, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(callEnvelope{Type: t, Data: data})
}
