package relay

import (
	"encoding/json"

	"github.com/mohamedkhairy/chat-relay/pkg/logger"
)

// Call signaling is a memoryless relay: each message is resolved against
// the registry and forwarded verbatim, annotated with the sender's
// identity. The relay keeps no negotiation state, does not pair accepts
// with initiations, and does not arbitrate overlapping initiations toward
// the same user.

// relayToUser delivers an event to the target user's current connection.
// An unconnected target is a silent drop: the caller's own timeout handles
// it, and no error event leaks the target's offline state to the sender.
func (h *Hub) relayToUser(targetUserID string, event string, data interface{}) bool {
	target, ok := h.registry.Lookup(targetUserID)
	if !ok {
		logger.Debug("Dropping signaling event, target not connected",
			logger.String("target_user_id", targetUserID),
			logger.String("event", event),
		)
		return false
	}
	target.SendEvent(event, data)
	return true
}

// handleCallInitiate notifies the target user of an incoming call,
// including the caller's display fields so the callee can render the
// call prompt
func (h *Hub) handleCallInitiate(conn *Connection, data json.RawMessage) {
	var payload callInitiatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.TargetUserID, EventCallIncoming, callIncomingPayload{
		CallerID:     conn.UserID(),
		CallerName:   conn.User.Name(),
		CallerAvatar: conn.User.Avatar,
		ChannelID:    payload.ChannelID,
	})
}

// handleCallReply relays an accept or reject back to the caller
func (h *Hub) handleCallReply(conn *Connection, data json.RawMessage, outEvent string) {
	var payload callReplyPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.CallerID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.CallerID, outEvent, callAcceptedPayload{
		UserID:   conn.UserID(),
		UserName: conn.User.Name(),
	})
}

func (h *Hub) handleCallOffer(conn *Connection, data json.RawMessage) {
	var payload callOfferPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.TargetUserID, EventCallOffer, callOfferOutPayload{
		CallerID: conn.UserID(),
		Offer:    payload.Offer,
	})
}

func (h *Hub) handleCallAnswer(conn *Connection, data json.RawMessage) {
	var payload callAnswerPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.TargetUserID, EventCallAnswer, callAnswerOutPayload{
		UserID: conn.UserID(),
		Answer: payload.Answer,
	})
}

func (h *Hub) handleCallCandidate(conn *Connection, data json.RawMessage) {
	var payload callCandidatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.TargetUserID, EventCallCandidate, callCandidateOutPayload{
		UserID:    conn.UserID(),
		Candidate: payload.Candidate,
	})
}

func (h *Hub) handleCallEnd(conn *Connection, data json.RawMessage) {
	var payload callEndPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.TargetUserID == "" {
		conn.SendError("invalid event payload")
		return
	}

	h.relayToUser(payload.TargetUserID, EventCallEnded, callEndedPayload{
		UserID: conn.UserID(),
	})
}
