package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/models"
)

// UserStore defines the interface for durable user record operations
type UserStore interface {
	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// SetStatus persists a user's presence status and last-seen timestamp
	SetStatus(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error

	// Close closes the storage connection
	Close() error
}

// MembershipStore defines the interface for durable channel membership lookups
type MembershipStore interface {
	// IsMember reports whether the user is a member of the channel
	IsMember(ctx context.Context, userID string, channelID string) (bool, error)

	// ListMemberships returns the IDs of all channels the user belongs to
	ListMemberships(ctx context.Context, userID string) ([]string, error)

	// GetChannel retrieves a channel by ID
	GetChannel(ctx context.Context, channelID string) (*models.Channel, error)

	// Close closes the storage connection
	Close() error
}

// PresenceStore mirrors presence state for other services to read.
// The relay is the only writer; the HTTP API reads it to answer
// "who is online" without touching the relay.
type PresenceStore interface {
	// SetPresence records a user's current status and last-seen timestamp
	SetPresence(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error

	// GetPresence retrieves a user's mirrored status, or StatusOffline if absent
	GetPresence(ctx context.Context, userID string) (models.Status, error)

	// Close closes the store connection
	Close() error
}
