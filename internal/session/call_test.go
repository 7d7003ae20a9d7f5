package session_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amrazz/z-chat/internal/session"
	"github.com/amrazz/z-chat/pkg/registry"
)

type callFixture struct {
	registry *registry.InMemoryRegistry
	conn     *fakeConn
	session  *session.CallSession
}

func newCallFixture(t *testing.T, reg *registry.InMemoryRegistry) *callFixture {
	t.Helper()
	if reg == nil {
		reg = registry.NewInMemoryRegistry(newTestLogger())
	}
	conn := newFakeConn()
	return &callFixture{
		registry: reg,
		conn:     conn,
		session:  session.NewCallSession(conn, reg, newTestLogger()),
	}
}

func (f *callFixture) handle(t *testing.T, event string) {
	t.Helper()
	f.session.HandleMessage(context.Background(), f.conn.ID(), []byte(event))
}

func (f *callFixture) login(t *testing.T, name string) {
	t.Helper()
	f.handle(t, `{"type":"login","data":{"name":"`+name+`"}}`)
	f.conn.mu.Lock()
	f.conn.got = nil
	f.conn.mu.Unlock()
}

func decodeCall(t *testing.T, frame []byte) (string, map[string]any) {
	t.Helper()
	var out struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &out))
	return out.Type, out.Data
}

func TestCallConnectSendsWelcome(t *testing.T) {
	f := newCallFixture(t, nil)

	f.session.Connect()

	frames := f.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "connection", typ)
	require.Equal(t, "connected", data["message"])
}

func TestLoginRepliesLoginSuccess(t *testing.T) {
	f := newCallFixture(t, nil)

	f.handle(t, `{"type":"login","data":{"name":"alice"}}`)

	frames := f.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "login_success", typ)
	require.Equal(t, "alice", data["name"])
}

func TestCallReachesCalleeAndConfirmsToCaller(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	alice.handle(t, `{"type":"call","data":{"name":"bob","rtcMessage":{"sdp":"offer-sdp","type":"offer"}}}`)

	bobFrames := bob.conn.frames()
	require.Len(t, bobFrames, 1)
	typ, data := decodeCall(t, bobFrames[0])
	require.Equal(t, "call_received", typ)
	require.Equal(t, "alice", data["caller"])
	require.Equal(t, map[string]any{"sdp": "offer-sdp", "type": "offer"}, data["rtcMessage"])

	aliceFrames := alice.conn.frames()
	require.Len(t, aliceFrames, 1)
	typ, data = decodeCall(t, aliceFrames[0])
	require.Equal(t, "call_sent", typ)
	require.Equal(t, "bob", data["to"])
}

func TestAnswerCallRelaysToCaller(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	bob.handle(t, `{"type":"answer_call","data":{"caller":"alice","rtcMessage":{"sdp":"answer-sdp"}}}`)

	frames := alice.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "call_answered", typ)
	require.Equal(t, map[string]any{"sdp": "answer-sdp"}, data["rtcMessage"])
	require.Empty(t, bob.conn.frames(), "answer_call has no self reply")
}

func TestICECandidateRelaysToPeer(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	alice.handle(t, `{"type":"ICEcandidate","data":{"user":"bob","rtcMessage":{"candidate":"c1"}}}`)

	frames := bob.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "ICEcandidate", typ)
	require.Equal(t, map[string]any{"candidate": "c1"}, data["rtcMessage"])
}

func TestEndCallWithTargetNotifiesOnlyThatGroup(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	alice.handle(t, `{"type":"end_call","data":{"user":"bob"}}`)

	frames := bob.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "call_ended", typ)
	require.Equal(t, "alice", data["from"])
	require.Empty(t, alice.conn.frames())
}

func TestEndCallWithoutTargetNotifiesOwnGroup(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	alice.handle(t, `{"type":"end_call"}`)

	frames := alice.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "call_ended", typ)
	require.Empty(t, data)
	require.Empty(t, bob.conn.frames(), "only the caller's own group is notified")
}

func TestPreLoginEventsAreRejected(t *testing.T) {
	f := newCallFixture(t, nil)

	f.handle(t, `{"type":"call","data":{"name":"bob","rtcMessage":{}}}`)

	frames := f.conn.frames()
	require.Len(t, frames, 1)
	typ, data := decodeCall(t, frames[0])
	require.Equal(t, "error", typ)
	require.Equal(t, "login required", data["message"])
}

func TestMalformedEventsAreDroppedSilently(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	alice.login(t, "alice")

	alice.handle(t, `{"data":{"name":"bob"}}`)                  // no type
	alice.handle(t, `{"type":"login","data":{}}`)               // login without name
	alice.handle(t, `{"type":"call","data":{"name":"bob"}}`)    // call without rtcMessage
	alice.handle(t, `{"type":"answer_call","data":{}}`)         // answer without fields
	alice.handle(t, `{"type":"teleport","data":{"user":"x"}}`)  // unknown type

	require.Empty(t, alice.conn.frames(), "malformed events get no reply")
}

func TestDisconnectRemovesParticipantFromGroup(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	alice := newCallFixture(t, reg)
	bob := newCallFixture(t, reg)
	alice.login(t, "alice")
	bob.login(t, "bob")

	bob.session.Disconnect()
	alice.handle(t, `{"type":"call","data":{"name":"bob","rtcMessage":{}}}`)

	require.Empty(t, bob.conn.frames(), "disconnected callee must not receive the call")
	// the caller still gets its call_sent confirmation
	frames := alice.conn.frames()
	require.Len(t, frames, 1)
	typ, _ := decodeCall(t, frames[0])
	require.Equal(t, "call_sent", typ)
}

func TestTwoLoginsUnderOneNameShareTheGroup(t *testing.T) {
	reg := registry.NewInMemoryRegistry(newTestLogger())
	phone := newCallFixture(t, reg)
	laptop := newCallFixture(t, reg)
	caller := newCallFixture(t, reg)
	phone.login(t, "bob")
	laptop.login(t, "bob")
	caller.login(t, "alice")

	caller.handle(t, `{"type":"call","data":{"name":"bob","rtcMessage":{}}}`)

	require.Len(t, phone.conn.frames(), 1)
	require.Len(t, laptop.conn.frames(), 1)
}

func TestAnonymousDisconnectIsNoop(t *testing.T) {
	f := newCallFixture(t, nil)
	// must not panic or touch the registry
	f.session.Disconnect()
}
