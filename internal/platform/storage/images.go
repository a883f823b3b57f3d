package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry = 15 * time.Minute
	defaultUploadExpiry   = 10 * time.Minute
)

var allowedImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	errNoSigner          = errors.New("storage: signer is required")
	errInvalidBucket     = errors.New("storage: bucket name is required")
	errInvalidObject     = errors.New("storage: object name is required")
	errContentTypeDenied = errors.New("storage: content type not allowed for product images")
)

// ImageURLSigner issues short-lived signed URLs for objects in the product
// images bucket. Downloads serve the storefront; uploads serve the back office.
type ImageURLSigner struct {
	signer Signer
	bucket string
	scheme storage.SigningScheme
	now    func() time.Time
}

// ImageURLSignerOption customises signer behaviour.
type ImageURLSignerOption func(*ImageURLSigner)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ImageURLSignerOption {
	return func(s *ImageURLSigner) {
		if scheme != 0 {
			s.scheme = scheme
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ImageURLSignerOption {
	return func(s *ImageURLSigner) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewImageURLSigner constructs a signer bound to the product images bucket.
func NewImageURLSigner(signer Signer, bucket string, opts ...ImageURLSignerOption) (*ImageURLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	s := &ImageURLSigner{
		signer: signer,
		bucket: bucket,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// SignedImageURL creates a GET URL for a stored product image.
func (s *ImageURLSigner) SignedImageURL(ctx context.Context, object string) (string, time.Time, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return "", time.Time{}, errInvalidObject
	}

	expiresAt := s.now().Add(defaultDownloadExpiry)
	opts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         s.scheme,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign image url: %w", err)
	}
	return signedURL, expiresAt, nil
}

// SignedUploadURL creates a PUT URL for uploading a product image.
func (s *ImageURLSigner) SignedUploadURL(ctx context.Context, object, contentType string) (string, time.Time, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return "", time.Time{}, errInvalidObject
	}
	if !imageContentTypeAllowed(contentType) {
		return "", time.Time{}, errContentTypeDenied
	}

	expiresAt := s.now().Add(defaultUploadExpiry)
	opts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         s.scheme,
		Method:         "PUT",
		ContentType:    strings.TrimSpace(contentType),
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return signedURL, expiresAt, nil
}

func imageContentTypeAllowed(contentType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	for _, candidate := range allowedImageContentTypes {
		if normalized == candidate {
			return true
		}
	}
	return false
}
