// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/betterme/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists accounts and check-in bookkeeping.
type Repository interface {
	// UpsertUserByEmail creates a user or renames the existing one with the same email.
	UpsertUserByEmail(ctx context.Context, name, email string) (*domain.User, error)

	// GetUser retrieves a user by their user ID. Returns ErrNotFound if missing.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// RecordActivity marks a user active. Empty optional fields keep their stored values.
	RecordActivity(ctx context.Context, activity *domain.Activity) error

	// ListActivity returns every activity record.
	ListActivity(ctx context.Context) ([]*domain.Activity, error)

	// MarkCheckinSent records when the last check-in email went out.
	MarkCheckinSent(ctx context.Context, userID string, at time.Time) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// StateStore persists conversation state buckets.
type StateStore interface {
	// Load returns the stored bucket for userID, or a fresh state if none exists.
	// Buckets are returned as decoded; callers run Migrate.
	Load(ctx context.Context, userID string) (*domain.UserState, error)

	// Save replaces the bucket for userID.
	Save(ctx context.Context, userID string, state *domain.UserState) error

	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by state backends reachable over the network.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lister is implemented by state backends that can enumerate their users.
type Lister interface {
	UserIDs(ctx context.Context) ([]string, error)
}
