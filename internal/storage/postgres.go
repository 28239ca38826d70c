package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/chat-relay/internal/config"
	"github.com/mohamedkhairy/chat-relay/internal/models"
	"github.com/mohamedkhairy/chat-relay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postgresQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_query_latency_seconds",
			Help:    "Query latency to PostgreSQL in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)

	postgresQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_query_errors_total",
			Help: "Total number of failed PostgreSQL queries",
		},
		[]string{"operation"},
	)
)

// PostgresStore implements UserStore and MembershipStore backed by PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store and verifies connectivity
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
	)

	return &PostgresStore{db: db}, nil
}

// GetUser retrieves a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	start := time.Now()
	defer func() {
		postgresQueryLatency.WithLabelValues("get_user").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, username, COALESCE(display_name, ''), COALESCE(avatar, ''), status, last_seen, is_active
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Avatar,
		&user.Status,
		&user.LastSeen,
		&user.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		postgresQueryErrors.WithLabelValues("get_user").Inc()
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// SetStatus persists a user's presence status and last-seen timestamp
func (s *PostgresStore) SetStatus(ctx context.Context, userID string, status models.Status, lastSeen time.Time) error {
	start := time.Now()
	defer func() {
		postgresQueryLatency.WithLabelValues("set_status").Observe(time.Since(start).Seconds())
	}()

	query := `
		UPDATE users
		SET status = $2, last_seen = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, userID, status, lastSeen)
	if err != nil {
		postgresQueryErrors.WithLabelValues("set_status").Inc()
		return fmt.Errorf("failed to update user status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// IsMember reports whether the user is a member of the channel
func (s *PostgresStore) IsMember(ctx context.Context, userID string, channelID string) (bool, error) {
	start := time.Now()
	defer func() {
		postgresQueryLatency.WithLabelValues("is_member").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM channel_members
			WHERE user_id = $1 AND channel_id = $2
		)
	`

	var isMember bool
	if err := s.db.QueryRowContext(ctx, query, userID, channelID).Scan(&isMember); err != nil {
		postgresQueryErrors.WithLabelValues("is_member").Inc()
		return false, fmt.Errorf("failed to query membership: %w", err)
	}

	return isMember, nil
}

// ListMemberships returns the IDs of all channels the user belongs to
func (s *PostgresStore) ListMemberships(ctx context.Context, userID string) ([]string, error) {
	start := time.Now()
	defer func() {
		postgresQueryLatency.WithLabelValues("list_memberships").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT channel_id
		FROM channel_members
		WHERE user_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		postgresQueryErrors.WithLabelValues("list_memberships").Inc()
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		channels = append(channels, channelID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return channels, nil
}

// GetChannel retrieves a channel by ID
func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	start := time.Now()
	defer func() {
		postgresQueryLatency.WithLabelValues("get_channel").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, name, COALESCE(description, ''), type, created_by, created_at
		FROM channels
		WHERE id = $1
	`

	var channel models.Channel
	err := s.db.QueryRowContext(ctx, query, channelID).Scan(
		&channel.ID,
		&channel.Name,
		&channel.Description,
		&channel.Type,
		&channel.CreatedBy,
		&channel.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrChannelClosed
	}
	if err != nil {
		postgresQueryErrors.WithLabelValues("get_channel").Inc()
		return nil, fmt.Errorf("failed to query channel: %w", err)
	}

	return &channel, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
