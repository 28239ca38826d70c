package relay

import (
	"encoding/json"
	"sync"
)

// GroupIndex tracks which connections participate in each channel's
// broadcast group. Membership is cached at connect time from the durable
// store and updated on explicit join/leave; the index itself never talks
// to storage.
type GroupIndex struct {
	groups map[string]map[string]*Connection // channel_id -> connection_id -> connection
	mu     sync.RWMutex
}

// NewGroupIndex creates an empty group index
func NewGroupIndex() *GroupIndex {
	return &GroupIndex{
		groups: make(map[string]map[string]*Connection),
	}
}

// Subscribe adds a connection to a channel's broadcast group
func (g *GroupIndex) Subscribe(conn *Connection, channelID string) {
	g.mu.Lock()
	if g.groups[channelID] == nil {
		g.groups[channelID] = make(map[string]*Connection)
	}
	g.groups[channelID][conn.ID] = conn
	g.mu.Unlock()

	conn.AddChannel(channelID)
}

// Unsubscribe removes a connection from a channel's broadcast group.
// Leaving a group the connection never joined is harmless.
func (g *GroupIndex) Unsubscribe(conn *Connection, channelID string) {
	g.mu.Lock()
	if members, exists := g.groups[channelID]; exists {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(g.groups, channelID)
		}
	}
	g.mu.Unlock()

	conn.RemoveChannel(channelID)
}

// UnsubscribeAll removes a connection from every group it participates in
func (g *GroupIndex) UnsubscribeAll(conn *Connection) {
	for _, channelID := range conn.Channels() {
		g.Unsubscribe(conn, channelID)
	}
}

// Members returns a snapshot of the connections subscribed to a channel
func (g *GroupIndex) Members(channelID string) []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, exists := g.groups[channelID]
	if !exists {
		return nil
	}
	connections := make([]*Connection, 0, len(members))
	for _, conn := range members {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the number of active broadcast groups
func (g *GroupIndex) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups)
}

// Broadcast sends an event to every member of a channel's group, skipping
// the connection named by except (pass "" to include everyone). The member
// snapshot is taken under the read lock; sends happen outside it and are
// individually best-effort, so one blocked subscriber cannot stall the rest.
// Returns the number of connections the event was enqueued for.
func (g *GroupIndex) Broadcast(channelID string, event string, data interface{}, except string) int {
	payload, err := json.Marshal(ServerEvent{Event: event, Data: data})
	if err != nil {
		return 0
	}

	members := g.Members(channelID)
	sent := 0
	for _, conn := range members {
		if conn.ID == except {
			continue
		}
		if conn.enqueue(event, payload) {
			sent++
		}
	}

	broadcastFanout.WithLabelValues(event).Observe(float64(sent))
	return sent
}
