package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/api/internal/models"
	"starterkit/api/internal/singleton"
	"starterkit/api/internal/storage"
)

type memoryAvatars struct {
	objects map[string][]byte
	mimes   map[string]string
	failPut bool
}

func (m *memoryAvatars) PutAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error) {
	if m.failPut {
		return "", errors.New("bucket unreachable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", errors.New("size mismatch")
	}
	key := storage.AvatarKey(userID, "obj")
	m.objects[key] = data
	m.mimes[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryAvatars) Ping(ctx context.Context) error { return nil }

func newProfileFixture(t *testing.T) (*ProfileService, *memoryAvatars, models.User) {
	t.Helper()
	f := newFixture(t, nil)

	avatars := &memoryAvatars{objects: map[string][]byte{}, mimes: map[string]string{}}
	holder := singleton.New[storage.Avatars]("objectstore", func(ctx context.Context) (storage.Avatars, error) {
		return avatars, nil
	})

	user := models.User{ID: "user-1", Name: "Ada", Email: "ada@example.com", Role: models.UserRoleUser, Status: models.UserStatusActive}
	require.NoError(t, f.users.Create(context.Background(), &user))

	return NewProfileService(f.users, holder, zerolog.Nop()), avatars, user
}

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	return data
}

func TestProfileGetAndUpdate(t *testing.T) {
	svc, _, user := newProfileFixture(t)
	ctx := context.Background()

	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	name := "  Ada Lovelace "
	updated, err := svc.Update(ctx, user.ID, ProfileInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)

	blank := "   "
	_, err = svc.Update(ctx, user.ID, ProfileInput{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUploadAvatar(t *testing.T) {
	svc, avatars, user := newProfileFixture(t)

	updated, err := svc.UploadAvatar(context.Background(), user.ID, bytes.NewReader(pngBytes(4096)))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/user-1/obj", updated.ImageURL())
	assert.Equal(t, "image/png", avatars.mimes["avatars/user-1/obj"])
	assert.Len(t, avatars.objects["avatars/user-1/obj"], 4096)
}

func TestUploadAvatarRejects(t *testing.T) {
	svc, avatars, user := newProfileFixture(t)
	ctx := context.Background()

	_, err := svc.UploadAvatar(ctx, user.ID, bytes.NewReader(pngBytes(MaxAvatarBytes+1)))
	assert.ErrorIs(t, err, ErrAvatarTooLarge)

	_, err = svc.UploadAvatar(ctx, user.ID, bytes.NewReader([]byte("<svg onload=alert(1)></svg>")))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	avatars.failPut = true
	_, err = svc.UploadAvatar(ctx, user.ID, bytes.NewReader(pngBytes(128)))
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	assert.Empty(t, avatars.objects)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewProfileService(f.users, nil, zerolog.Nop())

	_, err := svc.UploadAvatar(context.Background(), "user-1", bytes.NewReader(pngBytes(16)))
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestUploadAvatarAtExactLimit(t *testing.T) {
	svc, _, user := newProfileFixture(t)

	_, err := svc.UploadAvatar(context.Background(), user.ID, bytes.NewReader(pngBytes(MaxAvatarBytes)))
	assert.NoError(t, err)
}
