package relay

import (
	"encoding/json"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// setOnline marks a freshly registered connection's user online and
// announces it to the other members of every subscribed group
func (h *Hub) setOnline(conn *Connection) {
	h.persistStatus(conn, models.StatusOnline)
	h.broadcastPresence(conn, EventUserOnline, models.StatusOnline)
}

// setOffline marks a disconnecting user offline and announces it to the
// other members of every subscribed group
func (h *Hub) setOffline(conn *Connection) {
	h.persistStatus(conn, models.StatusOffline)
	h.broadcastPresence(conn, EventUserOffline, models.StatusOffline)
}

// handlePresenceUpdate applies an explicit status change requested by the
// user. Unrecognized status values are ignored without an error event.
func (h *Hub) handlePresenceUpdate(conn *Connection, data json.RawMessage) {
	var payload presencePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		conn.SendError("invalid event payload")
		return
	}

	status := models.Status(payload.Status)
	if !status.Valid() {
		logger.Debug("Ignoring invalid presence status",
			logger.String("user_id", conn.UserID()),
			logger.String("status", payload.Status),
		)
		return
	}

	h.persistStatus(conn, status)
	h.broadcastPresence(conn, EventUserStatus, status)
}

// persistStatus writes the status and last-seen timestamp to the durable
// user record and, when configured, to the presence mirror. Store failures
// are logged but do not interrupt the connection.
func (h *Hub) persistStatus(conn *Connection, status models.Status) {
	now := time.Now().UTC()

	ctx, cancel := h.storeCtx()
	defer cancel()

	if err := h.users.SetStatus(ctx, conn.UserID(), status, now); err != nil {
		logger.Error("Failed to persist presence status",
			logger.ErrorField(err),
			logger.String("user_id", conn.UserID()),
			logger.String("status", string(status)),
		)
	}

	if h.presence != nil {
		if err := h.presence.SetPresence(ctx, conn.UserID(), status, now); err != nil {
			logger.Warn("Failed to mirror presence status",
				logger.ErrorField(err),
				logger.String("user_id", conn.UserID()),
			)
		}
	}
}

// broadcastPresence emits a presence transition to the other members of
// every group the connection is subscribed to. The whole user base is never
// notified, only fellow channel members.
func (h *Hub) broadcastPresence(conn *Connection, event string, status models.Status) {
	payload := presenceChangePayload{
		UserID: conn.UserID(),
		Status: string(status),
	}
	for _, channelID := range conn.Channels() {
		h.groups.Broadcast(channelID, event, payload, conn.ID)
	}
	h.incrementEventsBroadcast()
}
