package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Connection represents one authenticated WebSocket session for one user
type Connection struct {
	ID   string
	User *models.User
	Conn *websocket.Conn
	Send chan []byte

	channels  map[string]bool // cached channel subscriptions
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	teardown  sync.Once
	lastPong  time.Time
	createdAt time.Time
}

// NewConnection creates a new connection for an authenticated user
func NewConnection(id string, user *models.User, conn *websocket.Conn, sendBuffer int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:        id,
		User:      user,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		channels:  make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
		lastPong:  time.Now(),
		createdAt: time.Now(),
	}
}

// UserID returns the owning user's ID
func (c *Connection) UserID() string {
	return c.User.ID
}

// AddChannel records a channel subscription in the connection's cache
func (c *Connection) AddChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channelID] = true
}

// RemoveChannel drops a channel subscription from the connection's cache
func (c *Connection) RemoveChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}

// InChannel reports whether the connection is subscribed to the channel
func (c *Connection) InChannel(channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channelID]
}

// Channels returns a snapshot of the connection's subscribed channels
func (c *Connection) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make([]string, 0, len(c.channels))
	for id := range c.channels {
		channels = append(channels, id)
	}
	return channels
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close cancels the connection's context and closes the transport.
// The Send channel is left open; pending writers bail out via the context.
func (c *Connection) Close() {
	c.cancel()
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// Done exposes the connection's cancellation signal
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SendEvent enqueues an event for delivery to this connection.
// Delivery is best-effort: a full send buffer means the event is dropped
// rather than blocking the caller, so one slow receiver never stalls a
// broadcast.
func (c *Connection) SendEvent(event string, data interface{}) error {
	payload, err := json.Marshal(ServerEvent{Event: event, Data: data})
	if err != nil {
		return err
	}
	if !c.enqueue(event, payload) {
		return models.ErrConnectionGone
	}
	return nil
}

// enqueue pushes an already-marshaled envelope into the send buffer without
// blocking. Reports whether the payload was accepted.
func (c *Connection) enqueue(event string, payload []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		eventsDropped.WithLabelValues(event).Inc()
		logger.Warn("Dropping event, send buffer full",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.User.ID),
			logger.String("event", event),
		)
		return false
	}
}

// SendError sends an error event to this connection alone
func (c *Connection) SendError(message string) error {
	return c.SendEvent(EventError, errorPayload{Message: message})
}
