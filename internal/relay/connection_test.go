package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohamedkhairy/chat-relay/internal/models"
)

func TestConnection_SendEventDropsWhenBufferFull(t *testing.T) {
	user := &models.User{ID: "user-1", Username: "user-1", IsActive: true}
	conn := NewConnection("conn-1", user, nil, 2)

	assert.NoError(t, conn.SendEvent(EventMessageNew, map[string]string{"messageId": "1"}))
	assert.NoError(t, conn.SendEvent(EventMessageNew, map[string]string{"messageId": "2"}))

	// Buffer is full; the third send is dropped, not blocked
	err := conn.SendEvent(EventMessageNew, map[string]string{"messageId": "3"})
	assert.ErrorIs(t, err, models.ErrConnectionGone)
	assert.Len(t, conn.Send, 2)
}

func TestConnection_SendEventAfterClose(t *testing.T) {
	user := &models.User{ID: "user-1", Username: "user-1", IsActive: true}
	conn := NewConnection("conn-1", user, nil, 16)

	conn.Close()

	err := conn.SendEvent(EventMessageNew, map[string]string{"messageId": "1"})
	assert.ErrorIs(t, err, models.ErrConnectionGone)
	assert.Empty(t, conn.Send)

	select {
	case <-conn.Done():
	default:
		t.Fatal("expected Done to be closed after Close")
	}
}

func TestConnection_ChannelCache(t *testing.T) {
	user := &models.User{ID: "user-1", Username: "user-1", IsActive: true}
	conn := NewConnection("conn-1", user, nil, 16)

	conn.AddChannel("chan-a")
	conn.AddChannel("chan-b")
	assert.True(t, conn.InChannel("chan-a"))
	assert.ElementsMatch(t, []string{"chan-a", "chan-b"}, conn.Channels())

	conn.RemoveChannel("chan-a")
	assert.False(t, conn.InChannel("chan-a"))
	assert.ElementsMatch(t, []string{"chan-b"}, conn.Channels())
}

func TestConnection_CloseIdempotent(t *testing.T) {
	user := &models.User{ID: "user-1", Username: "user-1", IsActive: true}
	conn := NewConnection("conn-1", user, nil, 16)

	conn.Close()
	conn.Close()
}
