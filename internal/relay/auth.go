package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/internal/storage"
)

// Authenticator validates handshake bearer tokens and resolves them to
// active user records. A connection that fails here never reaches the
// registry.
type Authenticator struct {
	jwtSecret []byte
	users     storage.UserStore
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(jwtSecret string, users storage.UserStore) *Authenticator {
	return &Authenticator{
		jwtSecret: []byte(jwtSecret),
		users:     users,
	}
}

// Authenticate validates a token and returns the active user it belongs to
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	user, err := a.authenticate(ctx, tokenString)
	if err != nil {
		authFailures.Inc()
		return nil, err
	}
	return user, nil
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, models.ErrInvalidToken
	}

	userID, err := a.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, models.ErrUserInactive
	}

	return user, nil
}

// parseToken validates the JWT signature and extracts the user ID claim
func (a *Authenticator) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", models.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", models.ErrInvalidToken
	}

	if id, ok := claims["id"].(string); ok {
		return id, nil
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub, nil
	}
	return "", fmt.Errorf("user id not found in token claims")
}

// ExtractToken pulls the bearer token from the Authorization header,
// falling back to the token query parameter for browser WebSocket clients
// that cannot set headers.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
