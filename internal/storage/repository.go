package storage

import (
	"context"
	"errors"
	"time"

	"threadlink/internal/domain"
)

// ErrNotFound is returned when a thread does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for data storage operations.
// It backs both the thread mutations and the link preview cache.
type Repository interface {
	// SaveThread stores a new thread or replaces an existing one.
	SaveThread(ctx context.Context, thread domain.Thread) error

	// GetThread returns the thread with its community pin state filled in.
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)

	SetThreadLock(ctx context.Context, threadID string, value bool) (domain.Thread, error)
	ToggleThreadNotifications(ctx context.Context, threadID string) (domain.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	EditThread(ctx context.Context, input domain.EditThreadInput) (*domain.Thread, error)

	// PinThread pins value in the community; an empty value unpins.
	PinThread(ctx context.Context, threadID, communityID, value string) (domain.Community, error)

	// GetUploads returns the files uploaded with a thread's edits.
	GetUploads(ctx context.Context, threadID string) ([]domain.FileUpload, error)

	// GetCachedPreview returns nil, nil when no fresh entry exists.
	GetCachedPreview(ctx context.Context, url string) (*domain.LinkPreview, error)
	SetCachedPreview(ctx context.Context, url string, p domain.LinkPreview, ttl time.Duration) error

	// Close gracefully shuts down the repository connection.
	Close() error
}
