// Package diary implements the entry and image workflow on top of the
// relational store and the upload root.
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"diary/internal/auth"
	"diary/internal/blob"
	"diary/internal/models"
	"diary/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	store  store.Store
	blobs  blob.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(st store.Store, blobs blob.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates an account and returns its id.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, models.ErrMissingField
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return 0, models.ErrPasswordTooLong
	}
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	id, err := s.store.CreateUser(ctx, username, hash, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", id)
	return id, nil
}

// Verify checks a login attempt. Unknown users and wrong passwords both
// return ErrInvalidCredentials.
func (s *Service) Verify(ctx context.Context, username, password string) (models.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, models.ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return models.User{}, models.ErrInvalidCredentials
	}
	return u, nil
}

// removeBlob deletes a stored file. Failures are logged and never returned.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		cleanupFailures.Inc()
		s.logger.WarnContext(ctx, "failed to remove image file", "key", key, "error", err)
	}
}
