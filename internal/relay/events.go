package relay

import (
	"context"
	"encoding/json"

	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// handleEvent dispatches one inbound event. Mutating notifications
// (edit/delete/react) are fanned out without re-checking authorization:
// the HTTP API already enforced it when it accepted the mutation, and the
// relay trusts events that reach it through that path. message:send is the
// exception, because the relay is the only checkpoint for it.
func (h *Hub) handleEvent(conn *Connection, event *ClientEvent) {
	h.incrementEventsReceived()
	eventsReceived.WithLabelValues(event.Event).Inc()

	switch event.Event {
	case EventChannelJoin:
		h.handleChannelJoin(conn, event.Data)
	case EventChannelLeave:
		h.handleChannelLeave(conn, event.Data)
	case EventMessageSend:
		h.handleMessageSend(conn, event.Data)
	case EventMessageEdit:
		h.handleMessageEdit(conn, event.Data)
	case EventMessageDelete:
		h.handleMessageDelete(conn, event.Data)
	case EventReactionAdd:
		h.handleReactionAdd(conn, event.Data)
	case EventReactionRemove:
		h.handleReactionRemove(conn, event.Data)
	case EventTypingStart:
		h.handleTyping(conn, event.Data, EventUserTyping)
	case EventTypingStop:
		h.handleTyping(conn, event.Data, EventUserTypingStop)
	case EventPresenceUpdate:
		h.handlePresenceUpdate(conn, event.Data)
	case EventCallInitiate:
		h.handleCallInitiate(conn, event.Data)
	case EventCallAccept:
		h.handleCallReply(conn, event.Data, EventCallAccepted)
	case EventCallReject:
		h.handleCallReply(conn, event.Data, EventCallRejected)
	case EventCallOffer:
		h.handleCallOffer(conn, event.Data)
	case EventCallAnswer:
		h.handleCallAnswer(conn, event.Data)
	case EventCallCandidate:
		h.handleCallCandidate(conn, event.Data)
	case EventCallEnd:
		h.handleCallEnd(conn, event.Data)
	default:
		eventsRejected.WithLabelValues(event.Event).Inc()
		conn.SendError("unknown event: " + event.Event)
	}
}

// storeCtx returns a bounded context for durable-store lookups made on a
// connection's reader goroutine. It is independent of the hub context so
// offline cleanup can still persist during shutdown.
func (h *Hub) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.config.StoreTimeout)
}

// handleChannelJoin subscribes the connection to a channel's broadcast
// group after verifying durable membership, or that the channel is public
func (h *Hub) handleChannelJoin(conn *Connection, data json.RawMessage) {
	var payload channelPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	ctx, cancel := h.storeCtx()
	defer cancel()

	allowed, err := h.memberships.IsMember(ctx, conn.UserID(), payload.ChannelID)
	if err != nil {
		logger.Error("Membership check failed",
			logger.ErrorField(err),
			logger.String("user_id", conn.UserID()),
			logger.String("channel_id", payload.ChannelID),
		)
		conn.SendError("Failed to join channel")
		return
	}

	if !allowed {
		channel, err := h.memberships.GetChannel(ctx, payload.ChannelID)
		allowed = err == nil && channel.Type == models.ChannelPublic
	}

	if !allowed {
		eventsRejected.WithLabelValues(EventChannelJoin).Inc()
		conn.SendError("Failed to join channel")
		return
	}

	h.groups.Subscribe(conn, payload.ChannelID)
	conn.SendEvent(EventChannelJoined, channelPayload{ChannelID: payload.ChannelID})
}

// handleChannelLeave unsubscribes the connection from a channel's group.
// No verification needed; leaving an unjoined group is harmless.
func (h *Hub) handleChannelLeave(conn *Connection, data json.RawMessage) {
	var payload channelPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Unsubscribe(conn, payload.ChannelID)
	conn.SendEvent(EventChannelLeft, channelPayload{ChannelID: payload.ChannelID})
}

// handleMessageSend re-verifies durable membership (the only checkpoint for
// this event) and broadcasts the payload as sent to the whole group,
// including the sender
func (h *Hub) handleMessageSend(conn *Connection, data json.RawMessage) {
	var payload messageSendPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	ctx, cancel := h.storeCtx()
	defer cancel()

	isMember, err := h.memberships.IsMember(ctx, conn.UserID(), payload.ChannelID)
	if err != nil {
		logger.Error("Membership check failed",
			logger.ErrorField(err),
			logger.String("user_id", conn.UserID()),
			logger.String("channel_id", payload.ChannelID),
		)
		conn.SendError("Failed to send message")
		return
	}
	if !isMember {
		eventsRejected.WithLabelValues(EventMessageSend).Inc()
		conn.SendError("Not a member of this channel")
		return
	}

	h.groups.Broadcast(payload.ChannelID, EventMessageNew, data, "")
	h.incrementEventsBroadcast()
}

func (h *Hub) handleMessageEdit(conn *Connection, data json.RawMessage) {
	var payload messageEditPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Broadcast(payload.ChannelID, EventMessageEdited, messageEditedPayload{
		MessageID: payload.MessageID,
		Content:   payload.Content,
		IsEdited:  true,
	}, "")
	h.incrementEventsBroadcast()
}

func (h *Hub) handleMessageDelete(conn *Connection, data json.RawMessage) {
	var payload messageDeletePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Broadcast(payload.ChannelID, EventMessageDeleted, messageDeletedPayload{
		MessageID: payload.MessageID,
	}, "")
	h.incrementEventsBroadcast()
}

func (h *Hub) handleReactionAdd(conn *Connection, data json.RawMessage) {
	var payload reactionAddPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Broadcast(payload.ChannelID, EventReactionAdded, reactionAddedPayload{
		MessageID: payload.MessageID,
		Reaction:  payload.Reaction,
	}, "")
	h.incrementEventsBroadcast()
}

func (h *Hub) handleReactionRemove(conn *Connection, data json.RawMessage) {
	var payload reactionRemovePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Broadcast(payload.ChannelID, EventReactionRemoved, reactionRemovedPayload{
		MessageID:  payload.MessageID,
		ReactionID: payload.ReactionID,
	}, "")
	h.incrementEventsBroadcast()
}

// handleTyping relays a typing indicator to the other members of the
// channel; the sender never sees its own typing echo
func (h *Hub) handleTyping(conn *Connection, data json.RawMessage, outEvent string) {
	var payload channelPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.groups.Broadcast(payload.ChannelID, outEvent, typingPayload{
		UserID:    conn.UserID(),
		Username:  conn.User.Name(),
		ChannelID: payload.ChannelID,
	}, conn.ID)
	h.incrementEventsBroadcast()
}
