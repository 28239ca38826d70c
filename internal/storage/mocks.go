package storage

import (
	"context"
	"sync"
	"time"

	"github.com/mohamedkhairy/chat-relay/internal/models"
)

// MockUserStore is a mock implementation of UserStore for testing
type MockUserStore struct {
	mu            sync.Mutex
	Users         map[string]*models.User
	StatusUpdates []StatusUpdate
	GetErr        error
	SetErr        error
}

// StatusUpdate records one SetStatus call
type StatusUpdate struct {
	UserID   string
	Status   models.Status
	LastSeen time.Time
}

// NewMockUserStore creates an empty mock user store
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{Users: make(map[string]*models.User)}
}

// AddUser registers a user in the mock store
func (m *MockUserStore) AddUser(user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
}

func (m *MockUserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	user, ok := m.Users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (m *MockUserStore) SetStatus(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if user, ok := m.Users[userID]; ok {
		user.Status = status
		user.LastSeen = lastSeen
	}
	m.StatusUpdates = append(m.StatusUpdates, StatusUpdate{UserID: userID, Status: status, LastSeen: lastSeen})
	return nil
}

// LastStatus returns the most recent status recorded for a user, or empty
func (m *MockUserStore) LastStatus(userID string) models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.StatusUpdates) - 1; i >= 0; i-- {
		if m.StatusUpdates[i].UserID == userID {
			return m.StatusUpdates[i].Status
		}
	}
	return ""
}

func (m *MockUserStore) Close() error {
	return nil
}

// MockMembershipStore is a mock implementation of MembershipStore for testing
type MockMembershipStore struct {
	mu          sync.Mutex
	Memberships map[string][]string // user_id -> channel_ids
	Channels    map[string]*models.Channel
	MemberErr   error
	ListErr     error
}

// NewMockMembershipStore creates an empty mock membership store
func NewMockMembershipStore() *MockMembershipStore {
	return &MockMembershipStore{
		Memberships: make(map[string][]string),
		Channels:    make(map[string]*models.Channel),
	}
}

// AddMembership makes a user a member of a channel
func (m *MockMembershipStore) AddMembership(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Memberships[userID] = append(m.Memberships[userID], channelID)
}

// RemoveMembership drops a user's membership in a channel
func (m *MockMembershipStore) RemoveMembership(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := m.Memberships[userID]
	for i, id := range channels {
		if id == channelID {
			m.Memberships[userID] = append(channels[:i], channels[i+1:]...)
			return
		}
	}
}

func (m *MockMembershipStore) IsMember(ctx context.Context, userID string, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MemberErr != nil {
		return false, m.MemberErr
	}
	for _, id := range m.Memberships[userID] {
		if id == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockMembershipStore) ListMemberships(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	channels := make([]string, len(m.Memberships[userID]))
	copy(channels, m.Memberships[userID])
	return channels, nil
}

func (m *MockMembershipStore) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, ok := m.Channels[channelID]
	if !ok {
		return nil, models.ErrChannelClosed
	}
	return channel, nil
}

func (m *MockMembershipStore) Close() error {
	return nil
}

// MockPresenceStore is a mock implementation of PresenceStore for testing
type MockPresenceStore struct {
	mu       sync.Mutex
	Presence map[string]models.Status
	SetErr   error
}

// NewMockPresenceStore creates an empty mock presence store
func NewMockPresenceStore() *MockPresenceStore {
	return &MockPresenceStore{Presence: make(map[string]models.Status)}
}

func (m *MockPresenceStore) SetPresence(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.Presence[userID] = status
	return nil
}

func (m *MockPresenceStore) GetPresence(ctx context.Context, userID string) (models.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.Presence[userID]
	if !ok {
		return models.StatusOffline, nil
	}
	return status, nil
}

func (m *MockPresenceStore) Close() error {
	return nil
}
