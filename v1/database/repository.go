package database

import (
	"context"
	"errors"

	"github.com/miladnoo/Heray/v1/models"
)

// ErrDuplicateEmail is returned when the storage layer rejects a member whose
// email (compared case-insensitively) already exists
var ErrDuplicateEmail = errors.New("email already registered")

// MemberRepository defines the storage-agnostic contract for member records.
// Implementations exist for GORM (PostgreSQL, SQLite) and the hosted REST datastore.
type MemberRepository interface {
	// FindByEmail returns the member with a matching email, or nil when absent
	FindByEmail(ctx context.Context, email string) (*models.Member, error)

	// CreateMember inserts a new member. The stored row is not read back.
	CreateMember(ctx context.Context, member *models.MemberInsert) error

	// ListMembers returns every member, newest first
	ListMembers(ctx context.Context) ([]models.Member, error)

	// Ping checks that the datastore is reachable
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close() error
}

// StorageError wraps a backend failure. Message carries the backend's own
// description, which is surfaced on write failures.
type StorageError struct {
	Operation string
	Message   string
	Err       error
}

func (e *StorageError) Error() string {
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type accessTokenKey struct{}

// WithAccessToken attaches a signed-in session's credential to ctx. Backends
// that enforce row-level policies run the call as that session.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the credential set by WithAccessToken
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

func newStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Message: err.Error(), Err: err}
}
