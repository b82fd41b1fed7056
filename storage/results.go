package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"sketchmagic_back/dataurl"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	maxResultBytes     int64 = 20 * 1024 * 1024
	resultsPrefix            = "results"
	defaultPresignTTL        = 15 * time.Minute
	resultCacheControl       = "public, max-age=604800"
)

var ErrNotConfigured = errors.New("storage: object storage not configured")

// ResultStorage publishes generated images to a MinIO/S3 bucket.
type ResultStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
	// private buckets are not world-readable; callers hand out presigned
	// URLs instead of the public ones.
	private bool
}

// NewResultStorageFromEnv initialises the store from MINIO_* variables. It
// returns nil, nil when publishing is not configured. MINIO_PRIVATE=true
// marks the bucket as private.
func NewResultStorageFromEnv() (*ResultStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: strings.TrimSpace(os.Getenv("MINIO_REGION")),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &ResultStorage{
		client:    client,
		bucket:    bucket,
		publicURL: publicBaseURL(strings.TrimSpace(os.Getenv("MINIO_PUBLIC_URL")), endpoint, useSSL),
		private:   strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_PRIVATE")), "true"),
	}, nil
}

// Private reports whether published URLs need presigning before use.
func (s *ResultStorage) Private() bool {
	return s != nil && s.private
}

// publicBaseURL prefers MINIO_PUBLIC_URL and otherwise derives the base
// from the endpoint.
func publicBaseURL(configured, endpoint string, useSSL bool) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, endpoint)
}

// Publish uploads an encoded image beneath
// results/<segments...>/<uuid>.<ext> and returns its public URL.
func (s *ResultStorage) Publish(ctx context.Context, encoded string, pathSegments ...string) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrNotConfigured
	}

	data, contentType, err := dataurl.Bytes(encoded)
	if err != nil {
		return "", fmt.Errorf("storage: decode image: %w", err)
	}
	if int64(len(data)) > maxResultBytes {
		return "", fmt.Errorf("storage: image exceeds %d bytes", maxResultBytes)
	}
	if sniffed := http.DetectContentType(data); isAllowedImage(sniffed) {
		contentType = sniffed
	}
	if !isAllowedImage(contentType) {
		return "", fmt.Errorf("storage: unsupported content type %q", contentType)
	}

	objectName := objectNameFor(contentType, pathSegments...)

	uploadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err = s.client.PutObject(uploadCtx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: resultCacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", objectName, err)
	}
	return s.buildPublicURL(objectName), nil
}

// PresignedURL returns a temporary URL for a published object. Unknown URLs
// are returned unchanged.
func (s *ResultStorage) PresignedURL(ctx context.Context, raw string, expiry time.Duration) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if s == nil || s.client == nil || trimmed == "" {
		return trimmed, nil
	}
	if expiry <= 0 {
		expiry = defaultPresignTTL
	}
	objectName, ok := s.objectNameFromURL(trimmed)
	if !ok {
		return trimmed, nil
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	signed, err := s.client.PresignedGetObject(presignCtx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", objectName, err)
	}
	return signed.String(), nil
}

// objectNameFor builds results/<segments...>/<uuid>.<ext>.
func objectNameFor(contentType string, pathSegments ...string) string {
	segments := []string{resultsPrefix}
	for _, segment := range pathSegments {
		if trimmed := strings.Trim(segment, "/ "); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return path.Join(append(segments, uuid.NewString()+extensionFor(contentType))...)
}

// buildPublicURL joins the public base, bucket and object name.
func (s *ResultStorage) buildPublicURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.publicURL, "/"), s.bucket, strings.TrimPrefix(objectName, "/"))
}

// objectNameFromURL accepts a public URL of this bucket or a bare object
// path.
func (s *ResultStorage) objectNameFromURL(raw string) (string, bool) {
	strip := func(candidate string) (string, bool) {
		candidate = strings.TrimPrefix(candidate, "/")
		candidate = strings.TrimPrefix(candidate, s.bucket+"/")
		candidate = strings.TrimPrefix(candidate, "/")
		return candidate, candidate != ""
	}

	if !strings.Contains(raw, "://") {
		return strip(raw)
	}
	target, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(s.publicURL)
	if err != nil || base.Host == "" || base.Host != target.Host {
		return "", false
	}
	return strip(strings.TrimPrefix(target.Path, strings.TrimSuffix(base.Path, "/")))
}

// isAllowedImage limits uploads to the raster formats the studio produces.
func isAllowedImage(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return true
	default:
		return false
	}
}

// extensionFor picks the object suffix for contentType.
func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
