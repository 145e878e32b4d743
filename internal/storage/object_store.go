package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"starterkit/api/internal/config"
	"starterkit/api/internal/ids"
)

const avatarPrefix = "avatars"

// Avatars is the slice of the object store the profile service needs.
type Avatars interface {
	PutAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error)
	Ping(ctx context.Context) error
}

type ObjectStore struct {
	client  *minio.Client
	cfg     config.StorageConfig
	baseURL string
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client:  client,
		cfg:     cfg,
		baseURL: PublicBaseURL(cfg, endpoint, useSSL),
	}, nil
}

// PublicBaseURL is the prefix objects are served from: the configured public URL,
// or the bucket on the endpoint itself.
func PublicBaseURL(cfg config.StorageConfig, host string, useSSL bool) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, cfg.BucketAvatars)
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	bucket := s.cfg.BucketAvatars
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// Ping checks that the avatar bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.cfg.BucketAvatars); err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.BucketAvatars, err)
	}
	return nil
}

// PutAvatar stores an avatar under avatars/<user>/<id> and returns its public URL.
func (s *ObjectStore) PutAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error) {
	key := AvatarKey(userID, ids.New())
	_, err := s.client.PutObject(ctx, s.cfg.BucketAvatars, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put avatar: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func AvatarKey(userID string, objectID string) string {
	return path.Join(avatarPrefix, userID, objectID)
}
