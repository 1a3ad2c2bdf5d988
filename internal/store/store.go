package store

import (
	"context"
	"iter"
	"time"

	"diary/internal/models"
)

// Store defines the interface for all database operations
type Store interface {
	// Users
	CreateUser(ctx context.Context, username, passwordHash string, now time.Time) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Entries
	UpsertEntry(ctx context.Context, userID int64, date, title, content string, now time.Time) (int64, error)
	EnsureEntry(ctx context.Context, userID int64, date string, now time.Time) (int64, error)
	GetEntryByDate(ctx context.Context, userID int64, date string) (models.Entry, error)
	GetEntriesBetween(ctx context.Context, userID int64, start, end string) ([]models.Entry, error)
	EntryDays(ctx context.Context, userID int64) iter.Seq2[models.Entry, error]
	DeleteEntry(ctx context.Context, entryID int64) error

	// Images
	CreateImage(ctx context.Context, img models.Image) (int64, error)
	GetImages(ctx context.Context, entryID int64) ([]models.Image, error)
	GetImageWithOwner(ctx context.Context, imageID, userID int64) (models.Image, error)
	DeleteImage(ctx context.Context, imageID int64) error

	Close() error
}
