// Package storage signs short-lived GET URLs against the S3-compatible
// object store (Cloudflare R2 in production) that holds generated audio
// and cover images. Objects are private; clients only ever see presigned
// URLs minted here.
package storage

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/tbourn/go-music-backend/internal/config"
)

// Signer mints presigned GET URLs for objects in a single bucket.
type Signer struct {
	api    s3iface.S3API
	bucket string
}

// NewSigner builds a Signer from the store configuration. R2 speaks the
// S3 API but only with path-style addressing, hence S3ForcePathStyle.
func NewSigner(cfg config.StorageConfig) (*Signer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: new session: %w", err)
	}
	return &Signer{api: s3.New(sess), bucket: cfg.Bucket}, nil
}

// SignGet returns a presigned GET URL for key, valid for ttl. Signing is
// a local HMAC computation; no request is made to the store.
func (s *Signer) SignGet(key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: empty object key")
	}
	req, _ := s.api.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return url, nil
}
