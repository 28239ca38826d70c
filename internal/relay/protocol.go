package relay

import (
	"encoding/json"
)

// Inbound event names
const (
	EventChannelJoin    = "channel:join"
	EventChannelLeave   = "channel:leave"
	EventMessageSend    = "message:send"
	EventMessageEdit    = "message:edit"
	EventMessageDelete  = "message:delete"
	EventReactionAdd    = "reaction:add"
	EventReactionRemove = "reaction:remove"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventPresenceUpdate = "presence:update"
	EventCallInitiate   = "call:initiate"
	EventCallAccept     = "call:accept"
	EventCallReject     = "call:reject"
	EventCallOffer      = "call:offer"
	EventCallAnswer     = "call:answer"
	EventCallCandidate  = "call:ice-candidate"
	EventCallEnd        = "call:end"
)

// Outbound event names
const (
	EventChannelJoined   = "channel:joined"
	EventChannelLeft     = "channel:left"
	EventMessageNew      = "message:new"
	EventMessageEdited   = "message:edited"
	EventMessageDeleted  = "message:deleted"
	EventReactionAdded   = "reaction:added"
	EventReactionRemoved = "reaction:removed"
	EventUserTyping      = "user:typing"
	EventUserTypingStop  = "user:typing:stop"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventUserStatus      = "user:status"
	EventCallIncoming    = "call:incoming"
	EventCallAccepted    = "call:accepted"
	EventCallRejected    = "call:rejected"
	EventCallEnded       = "call:ended"
	EventError           = "error"
)

// ClientEvent is the wire envelope for events received from a client
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the wire envelope for events sent to a client
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Inbound payloads

type channelPayload struct {
	ChannelID string `json:"channelId"`
}

type messageSendPayload struct {
	ChannelID string          `json:"channelId"`
	MessageID string          `json:"messageId"`
	Message   json.RawMessage `json:"message"`
}

type messageEditPayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type messageDeletePayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

type reactionAddPayload struct {
	ChannelID string          `json:"channelId"`
	MessageID string          `json:"messageId"`
	Reaction  json.RawMessage `json:"reaction"`
}

type reactionRemovePayload struct {
	ChannelID  string `json:"channelId"`
	MessageID  string `json:"messageId"`
	ReactionID string `json:"reactionId"`
}

type presencePayload struct {
	Status string `json:"status"`
}

type callInitiatePayload struct {
	TargetUserID string `json:"targetUserId"`
	ChannelID    string `json:"channelId"`
}

type callReplyPayload struct {
	CallerID string `json:"callerId"`
}

type callOfferPayload struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
}

type callAnswerPayload struct {
	TargetUserID string          `json:"targetUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type callCandidatePayload struct {
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type callEndPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// Outbound payloads

type errorPayload struct {
	Message string `json:"message"`
}

type presenceChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type typingPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ChannelID string `json:"channelId"`
}

type messageEditedPayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
	IsEdited  bool   `json:"isEdited"`
}

type messageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type reactionAddedPayload struct {
	MessageID string          `json:"messageId"`
	Reaction  json.RawMessage `json:"reaction"`
}

type reactionRemovedPayload struct {
	MessageID  string `json:"messageId"`
	ReactionID string `json:"reactionId"`
}

type callIncomingPayload struct {
	CallerID     string `json:"callerId"`
	CallerName   string `json:"callerName"`
	CallerAvatar string `json:"callerAvatar"`
	ChannelID    string `json:"channelId"`
}

type callAcceptedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type callOfferOutPayload struct {
	CallerID string          `json:"callerId"`
	Offer    json.RawMessage `json:"offer"`
}

type callAnswerOutPayload struct {
	UserID string          `json:"userId"`
	Answer json.RawMessage `json:"answer"`
}

type callCandidateOutPayload struct {
	UserID    string          `json:"userId"`
	Candidate json.RawMessage `json:"candidate"`
}

type callEndedPayload struct {
	UserID string `json:"userId"`
}
