package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/api/internal/models"
	"starterkit/api/internal/service"
)

type profileEnvelope struct {
	Profile profileResponse `json:"profile"`
}

func multipartFile(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "avatar.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func png(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	return data
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, token := f.createUser(t, "user-1", "ada@example.com", models.UserRoleUser)

	rec := f.bearer(http.MethodGet, "/api/profile", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.bearer(http.MethodGet, "/api/profile", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp profileEnvelope
	decode(t, rec, &resp)
	assert.Equal(t, "ada@example.com", resp.Profile.Email)
	assert.False(t, resp.Profile.HasPassword)
	assert.Empty(t, resp.Profile.Providers)

	// A valid token for a user that no longer exists.
	ghost, _, err := f.authCfg.Tokens.Issue(service.Subject(models.User{ID: "gone", Role: models.UserRoleUser}))
	require.NoError(t, err)
	rec = f.bearer(http.MethodGet, "/api/profile", ghost, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProfileWithBearer(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, token := f.createUser(t, "user-1", "ada@example.com", models.UserRoleUser)

	rec := f.bearer(http.MethodPatch, "/api/profile", token, strings.NewReader(`{"name":"Ada Lovelace"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp profileEnvelope
	decode(t, rec, &resp)
	assert.Equal(t, "Ada Lovelace", resp.Profile.Name)
	assert.Empty(t, rec.Result().Cookies(), "bearer sessions are not rewritten into cookies")

	rec = f.bearer(http.MethodPatch, "/api/profile", token, strings.NewReader(`{"name":"   "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfileReissuesCookieSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	b := f.browser(t)
	b.fetchCSRF()

	rec := b.postJSON("/api/auth/register", gin.H{"email": "ada@example.com", "password": "correct horse", "name": "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code)
	before, err := f.authCfg.Tokens.Parse(b.cookies[f.authCfg.Cookies.SessionName].Value)
	require.NoError(t, err)

	rec = b.do(http.MethodPatch, "/api/profile", strings.NewReader(`{"name":"Countess"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, err := f.authCfg.Tokens.Parse(b.cookies[f.authCfg.Cookies.SessionName].Value)
	require.NoError(t, err)
	assert.Equal(t, "Countess", after.Name)
	assert.Equal(t, before.ID, after.ID, "the session keeps its id so sign-out still revokes it")
}

func TestUploadAvatar(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	user, token := f.createUser(t, "user-1", "ada@example.com", models.UserRoleUser)

	body, contentType := multipartFile(t, png(1024))
	rec := f.bearer(http.MethodPost, "/api/profile/avatar", token, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp profileEnvelope
	decode(t, rec, &resp)
	assert.Equal(t, "https://cdn.example.com/avatars/"+user.ID+"/obj", resp.Profile.Image)
	assert.Len(t, f.avatars.objects["avatars/"+user.ID+"/obj"], 1024)
}

func TestUploadAvatarRejections(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, token := f.createUser(t, "user-1", "ada@example.com", models.UserRoleUser)

	body, contentType := multipartFile(t, []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	rec := f.bearer(http.MethodPost, "/api/profile/avatar", token, body, contentType)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, contentType = multipartFile(t, png(service.MaxAvatarBytes+1))
	rec = f.bearer(http.MethodPost, "/api/profile/avatar", token, body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.bearer(http.MethodPost, "/api/profile/avatar", token, strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.avatars.objects)
}

func TestUploadAvatarWithoutStorage(t *testing.T) {
	f := newFixture(t, fixtureOptions{noStorage: true})
	_, token := f.createUser(t, "user-1", "ada@example.com", models.UserRoleUser)

	body, contentType := multipartFile(t, png(64))
	rec := f.bearer(http.MethodPost, "/api/profile/avatar", token, body, contentType)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
