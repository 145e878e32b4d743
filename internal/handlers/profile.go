package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"starterkit/api/internal/middleware"
	"starterkit/api/internal/models"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/service"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 64 << 10

type profileResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Image         string     `json:"image,omitempty"`
	Role          string     `json:"role"`
	EmailVerified *time.Time `json:"emailVerified"`
	HasPassword   bool       `json:"hasPassword"`
	Providers     []string   `json:"providers"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type updateProfileRequest struct {
	Name *string `json:"name"`
}

func (h HandlerSet) GetProfile(c *gin.Context) {
	claims, _ := middleware.Claims(c)
	ctx := c.Request.Context()

	user, err := h.profiles.Get(ctx, claims.UserID())
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	accounts, err := h.accounts.ListByUser(ctx, user.ID)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	resp := newProfileResponse(user)
	for _, account := range accounts {
		resp.Providers = append(resp.Providers, account.Provider)
	}
	c.JSON(http.StatusOK, gin.H{"profile": resp})
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	claims, _ := middleware.Claims(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	user, err := h.profiles.Update(c.Request.Context(), claims.UserID(), service.ProfileInput{Name: req.Name})
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	h.reissueSession(c, user)
	c.JSON(http.StatusOK, gin.H{"profile": newProfileResponse(user)})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	claims, _ := middleware.Claims(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxAvatarBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_unreadable"})
		return
	}
	defer file.Close()

	user, err := h.profiles.UploadAvatar(c.Request.Context(), claims.UserID(), file)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	h.reissueSession(c, user)
	c.JSON(http.StatusOK, gin.H{"profile": newProfileResponse(user)})
}

// reissueSession puts the new name and image into a cookie session so the
// edge sees them without a database read. Bearer clients keep their token.
func (h HandlerSet) reissueSession(c *gin.Context, user models.User) {
	claims, ok := middleware.Claims(c)
	if !ok {
		return
	}
	if _, err := c.Cookie(h.authCfg.Cookies.SessionName); err != nil {
		return
	}

	next := *claims
	next.Name = user.Name
	next.Picture = user.ImageURL()
	token, _, err := h.authCfg.Tokens.Refresh(&next)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("session reissue failed")
		return
	}
	http.SetCookie(c.Writer, h.authCfg.SessionCookie(token))
}

func (h HandlerSet) writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case errors.Is(err, service.ErrAvatarTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "avatar_too_large"})
	case errors.Is(err, service.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_media_type"})
	case errors.Is(err, service.ErrStorageDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "avatar_storage_disabled"})
	case errors.Is(err, service.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "avatar_storage_unavailable"})
	default:
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("profile request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func newProfileResponse(user models.User) profileResponse {
	return profileResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		Image:         user.ImageURL(),
		Role:          string(user.Role),
		EmailVerified: user.EmailVerifiedAt,
		HasPassword:   user.HasPassword(),
		Providers:     []string{},
		CreatedAt:     user.CreatedAt,
	}
}
