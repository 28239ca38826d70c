package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Hub owns the connection registry and the broadcast groups, and runs the
// per-connection read/write pumps. Inbound events are dispatched on the
// reader goroutine of the connection that sent them, so events from one
// sender reach a group in the order they arrived.
type Hub struct {
	config      config.RelayConfig
	registry    *Registry
	groups      *GroupIndex
	users       storage.UserStore
	memberships storage.MembershipStore
	presence    storage.PresenceStore // nil when no mirror is configured

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stats   HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64     `json:"connectionsTotal"`
	ConnectionsActive int64     `json:"connectionsActive"`
	EventsReceived    int64     `json:"eventsReceived"`
	EventsBroadcast   int64     `json:"eventsBroadcast"`
	LastEventTime     time.Time `json:"lastEventTime"`

	mu sync.RWMutex
}

// NewHub creates a new relay hub
func NewHub(cfg config.RelayConfig, users storage.UserStore, memberships storage.MembershipStore, presence storage.PresenceStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:      cfg,
		registry:    NewRegistry(),
		groups:      NewGroupIndex(),
		users:       users,
		memberships: memberships,
		presence:    presence,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the hub's connection health monitor
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting relay hub",
		logger.Int("max_connections", h.config.MaxConnections),
		logger.Duration("ping_interval", h.config.PingInterval),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop stops the hub and closes every live connection
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping relay hub")
	for _, conn := range h.registry.All() {
		conn.Close()
	}
	h.cancel()
	h.wg.Wait()
	logger.Info("Relay hub stopped")
}

// Register admits an authenticated connection and starts its pumps
func (h *Hub) Register(conn *Connection) {
	h.admit(conn)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// admit makes the connection the user's live connection (last-connect-wins),
// joins the broadcast groups of every durable membership, and announces the
// user online
func (h *Hub) admit(conn *Connection) {
	previous := h.registry.Register(conn)
	if previous != nil {
		// The superseded transport is left open; its own disconnect
		// cleanup is guarded against evicting this newer entry.
		logger.Info("Connection superseded by reconnect",
			logger.String("user_id", conn.UserID()),
			logger.String("old_connection_id", previous.ID),
			logger.String("new_connection_id", conn.ID),
		)
	}

	connectionsTotal.Inc()
	connectionsActive.Set(float64(h.registry.Count()))
	h.incrementConnectionsTotal()

	ctx, cancel := context.WithTimeout(h.ctx, h.config.StoreTimeout)
	channels, err := h.memberships.ListMemberships(ctx, conn.UserID())
	cancel()
	if err != nil {
		logger.Error("Failed to load channel memberships",
			logger.ErrorField(err),
			logger.String("connection_id", conn.ID),
			logger.String("user_id", conn.UserID()),
		)
		conn.SendError("Failed to load channel memberships")
	} else {
		for _, channelID := range channels {
			h.groups.Subscribe(conn, channelID)
		}
	}

	h.setOnline(conn)

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID()),
		logger.Int("channels", len(channels)),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// Unregister tears a connection down exactly once: offline presence is
// broadcast, the connection leaves its groups, and the registry entry is
// deleted only if this connection still owns it.
func (h *Hub) Unregister(conn *Connection) {
	conn.teardown.Do(func() {
		h.setOffline(conn)
		h.groups.UnsubscribeAll(conn)
		owned := h.registry.Unregister(conn.UserID(), conn.ID)
		conn.Close()

		connectionsActive.Set(float64(h.registry.Count()))

		logger.Info("Connection unregistered",
			logger.String("connection_id", conn.ID),
			logger.String("user_id", conn.UserID()),
			logger.Bool("owned_registry_entry", owned),
			logger.Int("total_connections", h.registry.Count()),
		)
	})
}

// ActiveConnections returns the number of registered connections
func (h *Hub) ActiveConnections() int {
	return h.registry.Count()
}

// writePump pumps enqueued events to the WebSocket connection and keeps the
// transport alive with pings
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-conn.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound events from the WebSocket connection and dispatches
// them sequentially
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(message, &event); err != nil {
			conn.SendError("failed to parse event")
			continue
		}

		h.handleEvent(conn, &event)
	}
}

// monitorConnections removes connections whose transport stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			staleThreshold := h.config.ReadTimeout * 2

			for _, conn := range h.registry.All() {
				lastPong := conn.GetLastPong()
				if now.Sub(lastPong) > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("user_id", conn.UserID()),
						logger.Duration("idle_time", now.Sub(lastPong)),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		ConnectionsTotal:  h.stats.ConnectionsTotal,
		ConnectionsActive: int64(h.registry.Count()),
		EventsReceived:    h.stats.EventsReceived,
		EventsBroadcast:   h.stats.EventsBroadcast,
		LastEventTime:     h.stats.LastEventTime,
	}
}

func (h *Hub) incrementConnectionsTotal() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ConnectionsTotal++
}

func (h *Hub) incrementEventsReceived() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.EventsReceived++
	h.stats.LastEventTime = time.Now()
}

func (h *Hub) incrementEventsBroadcast() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.EventsBroadcast++
}
