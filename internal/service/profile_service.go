package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"starterkit/api/internal/media/sniffer"
	"starterkit/api/internal/models"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/storage"
)

// MaxAvatarBytes bounds avatar uploads.
const MaxAvatarBytes = 2 << 20

const maxNameLength = 120

var (
	ErrAvatarTooLarge     = errors.New("avatar too large")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrStorageDisabled    = errors.New("avatar storage not configured")
	ErrStorageUnavailable = errors.New("avatar storage unavailable")
)

// AvatarStoreProvider hands out the shared object store.
type AvatarStoreProvider interface {
	Get(ctx context.Context) (storage.Avatars, error)
}

type ProfileService struct {
	users *repository.UserRepository
	store AvatarStoreProvider
	log   zerolog.Logger
}

// NewProfileService accepts a nil store when avatar storage is not configured.
func NewProfileService(users *repository.UserRepository, store AvatarStoreProvider, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		users: users,
		store: store,
		log:   log.With().Str("component", "profile").Logger(),
	}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (models.User, error) {
	return s.users.GetByID(ctx, userID)
}

type ProfileInput struct {
	Name *string
}

func (s *ProfileService) Update(ctx context.Context, userID string, input ProfileInput) (models.User, error) {
	var update repository.ProfileUpdate
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return models.User{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
		}
		update.Name = &name
	}
	return s.users.UpdateProfile(ctx, userID, update)
}

// UploadAvatar checks the image by content, stores it and points the profile at it.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID string, body io.Reader) (models.User, error) {
	if s.store == nil {
		return models.User{}, ErrStorageDisabled
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxAvatarBytes+1))
	if err != nil {
		return models.User{}, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > MaxAvatarBytes {
		return models.User{}, ErrAvatarTooLarge
	}

	kind, err := sniffer.DetectHead(data)
	if err != nil {
		return models.User{}, ErrUnsupportedMedia
	}

	store, err := s.store.Get(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("object store unavailable")
		return models.User{}, ErrStorageUnavailable
	}

	url, err := store.PutAvatar(ctx, userID, bytes.NewReader(data), int64(len(data)), kind.MIME)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("avatar upload failed")
		return models.User{}, ErrStorageUnavailable
	}

	user, err := s.users.UpdateProfile(ctx, userID, repository.ProfileUpdate{Image: &url})
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("mime", kind.MIME).
		Int("size", len(data)).
		Msg("avatar updated")
	return user, nil
}
