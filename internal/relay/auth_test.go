package relay

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authFixture(t *testing.T) (*Authenticator, *storage.MockUserStore) {
	t.Helper()
	users := storage.NewMockUserStore()
	users.AddUser(&models.User{ID: "user-1", Username: "alice", IsActive: true})
	return NewAuthenticator(testSecret, users), users
}

func TestAuthenticate_ValidToken(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, testSecret, jwt.MapClaims{
		"id":  "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	user, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthenticate_SubClaimFallback(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	user, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	auth, _ := authFixture(t)

	_, err := auth.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, "other-secret", jwt.MapClaims{"id": "user-1"})

	_, err := auth.Authenticate(context.Background(), token)
	assert.Error(t, err)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, testSecret, jwt.MapClaims{
		"id":  "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := auth.Authenticate(context.Background(), token)
	assert.Error(t, err)
}

func TestAuthenticate_MissingIDClaim(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := auth.Authenticate(context.Background(), token)
	assert.Error(t, err)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	auth, _ := authFixture(t)
	token := signToken(t, testSecret, jwt.MapClaims{"id": "user-ghost"})

	_, err := auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	auth, users := authFixture(t)
	users.AddUser(&models.User{ID: "user-2", Username: "bob", IsActive: false})
	token := signToken(t, testSecret, jwt.MapClaims{"id": "user-2"})

	_, err := auth.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrUserInactive)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc123", "", "abc123"},
		{"lowercase bearer", "bearer abc123", "", "abc123"},
		{"bare token header", "abc123", "", "abc123"},
		{"query fallback", "", "abc123", "abc123"},
		{"header wins over query", "Bearer fromheader", "fromquery", "fromheader"},
		{"wrong scheme", "Basic abc123", "", ""},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ws"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(r))
		})
	}
}
