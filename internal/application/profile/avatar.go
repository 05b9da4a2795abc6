// Package profile manages the creator's profile picture.
package profile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
)

const (
	// DefaultBucket holds avatars.
	DefaultBucket = "profile-pictures"

	// MaxAvatarSize is the largest accepted upload.
	MaxAvatarSize = 5 * 1024 * 1024 // 5MB

	metadataAvatarURL = "avatar_url"
)

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Upload is an avatar file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AvatarUploader stores avatars and points the user's profile at them.
type AvatarUploader struct {
	storage  gateway.Storage
	identity gateway.Identity
	logger   *slog.Logger
	bucket   string
	maxSize  int64
}

// Option configures an AvatarUploader.
type Option func(*AvatarUploader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *AvatarUploader) {
		u.logger = logger
	}
}

// WithBucket overrides DefaultBucket.
func WithBucket(bucket string) Option {
	return func(u *AvatarUploader) {
		u.bucket = bucket
	}
}

// WithMaxSize overrides MaxAvatarSize.
func WithMaxSize(n int64) Option {
	return func(u *AvatarUploader) {
		u.maxSize = n
	}
}

// NewAvatarUploader creates an uploader.
func NewAvatarUploader(storage gateway.Storage, identity gateway.Identity, opts ...Option) *AvatarUploader {
	u := &AvatarUploader{
		storage:  storage,
		identity: identity,
		logger:   slog.Default(),
		bucket:   DefaultBucket,
		maxSize:  MaxAvatarSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload validates and stores file under "<uid>/<uid>-<random>.<ext>", then records its public
// URL as the user's avatar_url. It returns the public URL.
func (u *AvatarUploader) Upload(ctx context.Context, userID uuid.UUID, accessToken string, file Upload) (string, error) {
	if err := shared.ValidateUserID(userID); err != nil {
		return "", err
	}
	if accessToken == "" {
		return "", errs.ErrUnauthorized
	}

	ext, err := u.validate(file)
	if err != nil {
		return "", err
	}

	objectPath := fmt.Sprintf("%s/%s-%s.%s", userID, userID, uuid.NewUUID(), ext)

	if uploadErr := u.storage.Upload(ctx, gateway.Object{
		Bucket:      u.bucket,
		Path:        objectPath,
		ContentType: file.ContentType,
		Body:        io.LimitReader(file.Body, u.maxSize+1),
	}); uploadErr != nil {
		u.logger.ErrorContext(ctx, "failed to upload avatar",
			slog.String("user_id", userID.String()),
			slog.String("path", objectPath),
			slog.String("error", uploadErr.Error()),
		)
		return "", fmt.Errorf("failed to upload avatar: %w", errs.Unavailable(uploadErr))
	}

	publicURL := u.storage.PublicURL(u.bucket, objectPath)

	if updateErr := u.identity.UpdateUserMetadata(ctx, accessToken, map[string]any{
		metadataAvatarURL: publicURL,
	}); updateErr != nil {
		u.logger.ErrorContext(ctx, "failed to update avatar url",
			slog.String("user_id", userID.String()),
			slog.String("error", updateErr.Error()),
		)
		return "", fmt.Errorf("failed to update profile: %w", errs.Unavailable(updateErr))
	}

	u.logger.InfoContext(ctx, "avatar updated",
		slog.String("user_id", userID.String()),
		slog.String("path", objectPath),
	)
	return publicURL, nil
}

// validate checks type and size and returns the file extension to store under.
func (u *AvatarUploader) validate(file Upload) (string, error) {
	if file.Body == nil {
		return "", shared.NewValidationError("file", "is required")
	}
	if file.Size <= 0 {
		return "", shared.NewValidationError("file", "is empty")
	}
	if file.Size > u.maxSize {
		return "", shared.NewValidationError("file", fmt.Sprintf("exceeds %d bytes", u.maxSize))
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(file.ContentType, ";")[0]))
	typeExt, ok := allowedTypes[contentType]
	if !ok {
		return "", shared.NewValidationError("file", "type not allowed: "+file.ContentType)
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(file.Filename), "."))
	if ext == "" {
		ext = typeExt
	}
	return ext, nil
}
