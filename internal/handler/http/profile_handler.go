package httphandler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/application/profile"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
	"github.com/lllypuk/creatordash/internal/middleware"
)

// avatarFormField is the multipart field carrying the image.
const avatarFormField = "file"

// AvatarResponse carries the new public avatar URL.
type AvatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}

// AvatarUploader stores a new avatar and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, userID uuid.UUID, accessToken string, file profile.Upload) (string, error)
}

// ProfileHandler handles profile updates.
type ProfileHandler struct {
	uploader AvatarUploader
	observe  func(error)
	limit    []echo.MiddlewareFunc
}

// ProfileOption configures a ProfileHandler.
type ProfileOption func(*ProfileHandler)

// WithUploadObserver is told the outcome of every upload.
func WithUploadObserver(fn func(error)) ProfileOption {
	return func(h *ProfileHandler) {
		h.observe = fn
	}
}

// WithUploadLimit adds route middleware (normally a per-user rate limit) to the upload route.
func WithUploadLimit(m ...echo.MiddlewareFunc) ProfileOption {
	return func(h *ProfileHandler) {
		h.limit = append(h.limit, m...)
	}
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(uploader AvatarUploader, opts ...ProfileOption) *ProfileHandler {
	h := &ProfileHandler{
		uploader: uploader,
		observe:  func(error) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers profile routes on the authenticated API group.
func (h *ProfileHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/profile/avatar", h.UploadAvatar, h.limit...)
}

// UploadAvatar handles POST /api/v1/profile/avatar (multipart field "file").
func (h *ProfileHandler) UploadAvatar(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		return httpserver.RespondErrorWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}

	header, err := c.FormFile(avatarFormField)
	if err != nil {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR",
			"multipart field \"file\" is required")
	}

	file, err := header.Open()
	if err != nil {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable upload")
	}
	defer file.Close()

	url, err := h.uploader.Upload(c.Request().Context(), userID, middleware.GetAccessToken(c), profile.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get(echo.HeaderContentType),
		Size:        header.Size,
		Body:        file,
	})
	h.observe(err)
	if err != nil {
		return handleError(c, err)
	}

	return httpserver.RespondOK(c, AvatarResponse{AvatarURL: url})
}
