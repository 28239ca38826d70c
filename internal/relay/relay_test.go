package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
)

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Port:           5000,
		ReadTimeout:    time.Minute,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxConnections: 100,
		SendBufferSize: 16,
		StoreTimeout:   time.Second,
		JWTSecret:      "test-secret",
	}
}

type testEnv struct {
	hub         *Hub
	users       *storage.MockUserStore
	memberships *storage.MockMembershipStore
	presence    *storage.MockPresenceStore
}

func newTestEnv() *testEnv {
	users := storage.NewMockUserStore()
	memberships := storage.NewMockMembershipStore()
	presence := storage.NewMockPresenceStore()
	return &testEnv{
		hub:         NewHub(testRelayConfig(), users, memberships, presence),
		users:       users,
		memberships: memberships,
		presence:    presence,
	}
}

// connect admits a user with the given durable memberships and drains the
// presence traffic the admission produced, on every connection involved
func (e *testEnv) connect(t *testing.T, connID, userID string, channels ...string) *Connection {
	t.Helper()
	user := &models.User{ID: userID, Username: userID, IsActive: true}
	e.users.AddUser(user)
	for _, channelID := range channels {
		e.memberships.AddMembership(userID, channelID)
	}

	conn := NewConnection(connID, user, nil, e.hub.config.SendBufferSize)
	e.hub.admit(conn)

	for _, other := range e.hub.registry.All() {
		drain(other)
	}
	return conn
}

func drain(conn *Connection) {
	for {
		select {
		case <-conn.Send:
		default:
			return
		}
	}
}

func (e *testEnv) dispatch(conn *Connection, event string, data interface{}) {
	raw, _ := json.Marshal(data)
	e.hub.handleEvent(conn, &ClientEvent{Event: event, Data: raw})
}

func TestMessageSend_BroadcastToChannelMembers(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")
	conn3 := env.connect(t, "conn-3", "user-3", "chan-y")

	env.dispatch(conn1, EventMessageSend, map[string]string{
		"channelId": "chan-x",
		"messageId": "msg-1",
	})

	// Delivered to the whole group including the sender
	event, data := recvData(t, conn1)
	assert.Equal(t, EventMessageNew, event)
	assert.Equal(t, "msg-1", data["messageId"])

	event, data = recvData(t, conn2)
	assert.Equal(t, EventMessageNew, event)
	assert.Equal(t, "msg-1", data["messageId"])

	// Not delivered outside the channel
	assertNoEvent(t, conn3)
}

func TestMessageSend_NonMemberRejected(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")

	env.dispatch(conn1, EventMessageSend, map[string]string{
		"channelId": "chan-x",
		"messageId": "msg-1",
	})

	event, data := recvData(t, conn1)
	assert.Equal(t, EventError, event)
	assert.Equal(t, "Not a member of this channel", data["message"])

	// The rejection is scoped to the sender
	assertNoEvent(t, conn2)
}

func TestMessageSend_StoreUnavailable(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1", "chan-x")
	env.memberships.MemberErr = errors.New("connection refused")

	env.dispatch(conn, EventMessageSend, map[string]string{
		"channelId": "chan-x",
		"messageId": "msg-1",
	})

	event, data := recvData(t, conn)
	assert.Equal(t, EventError, event)
	assert.Equal(t, "Failed to send message", data["message"])

	// The connection stays registered and can retry
	_, registered := env.hub.registry.Lookup("user-1")
	assert.True(t, registered)
}

func TestMessageEdit_NoMembershipCheck(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")

	// Edits are pre-authorized by the HTTP API; the relay fans out without
	// consulting the membership store at all
	env.memberships.MemberErr = errors.New("store down")

	env.dispatch(conn1, EventMessageEdit, map[string]string{
		"channelId": "chan-x",
		"messageId": "msg-1",
		"content":   "updated",
	})

	event, data := recvData(t, conn2)
	assert.Equal(t, EventMessageEdited, event)
	assert.Equal(t, "msg-1", data["messageId"])
	assert.Equal(t, "updated", data["content"])
	assert.Equal(t, true, data["isEdited"])

	// The editor sees the broadcast too
	event, _ = recvData(t, conn1)
	assert.Equal(t, EventMessageEdited, event)
}

func TestMessageDelete_Broadcast(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")

	env.dispatch(conn1, EventMessageDelete, map[string]string{
		"channelId": "chan-x",
		"messageId": "msg-1",
	})

	event, data := recvData(t, conn2)
	assert.Equal(t, EventMessageDeleted, event)
	assert.Equal(t, "msg-1", data["messageId"])
	require.NotContains(t, data, "channelId")
}

func TestReactions_Broadcast(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")

	env.dispatch(conn1, EventReactionAdd, map[string]interface{}{
		"channelId": "chan-x",
		"messageId": "msg-1",
		"reaction":  map[string]string{"emoji": "+1", "userId": "user-1"},
	})

	event, data := recvData(t, conn2)
	assert.Equal(t, EventReactionAdded, event)
	assert.Equal(t, "msg-1", data["messageId"])
	assert.NotNil(t, data["reaction"])
	drain(conn1)

	env.dispatch(conn1, EventReactionRemove, map[string]string{
		"channelId":  "chan-x",
		"messageId":  "msg-1",
		"reactionId": "react-1",
	})

	event, data = recvData(t, conn2)
	assert.Equal(t, EventReactionRemoved, event)
	assert.Equal(t, "react-1", data["reactionId"])
}

func TestTyping_NotEchoedToSender(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")
	env.users.Users["user-1"].DisplayName = "Alice"

	env.dispatch(conn1, EventTypingStart, map[string]string{"channelId": "chan-x"})

	event, data := recvData(t, conn2)
	assert.Equal(t, EventUserTyping, event)
	assert.Equal(t, "user-1", data["userId"])
	assert.Equal(t, "Alice", data["username"])
	assert.Equal(t, "chan-x", data["channelId"])
	assertNoEvent(t, conn1)

	env.dispatch(conn1, EventTypingStop, map[string]string{"channelId": "chan-x"})

	event, _ = recvData(t, conn2)
	assert.Equal(t, EventUserTypingStop, event)
	assertNoEvent(t, conn1)
}

func TestChannelJoin_MemberAcked(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1")
	env.memberships.AddMembership("user-1", "chan-x")

	env.dispatch(conn, EventChannelJoin, map[string]string{"channelId": "chan-x"})

	event, data := recvData(t, conn)
	assert.Equal(t, EventChannelJoined, event)
	assert.Equal(t, "chan-x", data["channelId"])
	assert.True(t, conn.InChannel("chan-x"))
}

func TestChannelJoin_PublicChannelAllowed(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1")
	env.memberships.Channels["chan-pub"] = &models.Channel{ID: "chan-pub", Type: models.ChannelPublic}

	env.dispatch(conn, EventChannelJoin, map[string]string{"channelId": "chan-pub"})

	event, _ := recvData(t, conn)
	assert.Equal(t, EventChannelJoined, event)
	assert.True(t, conn.InChannel("chan-pub"))
}

func TestChannelJoin_NonMemberRejected(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1")
	env.memberships.Channels["chan-priv"] = &models.Channel{ID: "chan-priv", Type: models.ChannelPrivate}

	env.dispatch(conn, EventChannelJoin, map[string]string{"channelId": "chan-priv"})

	event, data := recvData(t, conn)
	assert.Equal(t, EventError, event)
	assert.Equal(t, "Failed to join channel", data["message"])
	assert.False(t, conn.InChannel("chan-priv"))
	assert.Empty(t, env.hub.groups.Members("chan-priv"))
}

func TestChannelLeave_Idempotent(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1", "chan-x")

	env.dispatch(conn, EventChannelLeave, map[string]string{"channelId": "chan-x"})
	event, _ := recvData(t, conn)
	assert.Equal(t, EventChannelLeft, event)
	assert.False(t, conn.InChannel("chan-x"))

	// Leaving again acks the same way and leaves the same state
	env.dispatch(conn, EventChannelLeave, map[string]string{"channelId": "chan-x"})
	event, _ = recvData(t, conn)
	assert.Equal(t, EventChannelLeft, event)
	assert.False(t, conn.InChannel("chan-x"))
	assert.Empty(t, env.hub.groups.Members("chan-x"))
}

func TestUnknownEvent_ErrorToSenderOnly(t *testing.T) {
	env := newTestEnv()

	conn1 := env.connect(t, "conn-1", "user-1", "chan-x")
	conn2 := env.connect(t, "conn-2", "user-2", "chan-x")

	env.hub.handleEvent(conn1, &ClientEvent{Event: "message:unknown", Data: json.RawMessage(`{}`)})

	event, data := recvData(t, conn1)
	assert.Equal(t, EventError, event)
	assert.Contains(t, data["message"], "unknown event")
	assertNoEvent(t, conn2)
}

func TestAdmit_MembershipLoadFailure(t *testing.T) {
	env := newTestEnv()
	env.memberships.ListErr = errors.New("connection refused")

	user := &models.User{ID: "user-1", Username: "user-1", IsActive: true}
	env.users.AddUser(user)
	conn := NewConnection("conn-1", user, nil, 16)
	env.hub.admit(conn)

	event, data := recvData(t, conn)
	assert.Equal(t, EventError, event)
	assert.Equal(t, "Failed to load channel memberships", data["message"])

	// Still registered: the operation can be retried via channel:join
	_, registered := env.hub.registry.Lookup("user-1")
	assert.True(t, registered)
	assert.Empty(t, conn.Channels())
}

func TestAdmit_SubscribesDurableMemberships(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1", "chan-a", "chan-b")

	assert.ElementsMatch(t, []string{"chan-a", "chan-b"}, conn.Channels())
	assert.Len(t, env.hub.groups.Members("chan-a"), 1)
	assert.Len(t, env.hub.groups.Members("chan-b"), 1)
}

func TestUnregister_SupersededConnectionKeepsNewMapping(t *testing.T) {
	env := newTestEnv()

	oldConn := env.connect(t, "conn-old", "user-1", "chan-x")
	// Same user reconnects
	user := env.users.Users["user-1"]
	newConn := NewConnection("conn-new", user, nil, 16)
	env.hub.admit(newConn)
	drain(oldConn)
	drain(newConn)

	// The old connection's delayed disconnect runs its cleanup
	env.hub.Unregister(oldConn)

	resolved, exists := env.hub.registry.Lookup("user-1")
	require.True(t, exists)
	assert.Equal(t, "conn-new", resolved.ID)
}

func TestMalformedEvent_Payload(t *testing.T) {
	env := newTestEnv()

	conn := env.connect(t, "conn-1", "user-1", "chan-x")

	env.hub.handleEvent(conn, &ClientEvent{Event: EventMessageSend, Data: json.RawMessage(`"not-an-object"`)})

	event, data := recvData(t, conn)
	assert.Equal(t, EventError, event)
	assert.Equal(t, "invalid event payload", data["message"])
}
