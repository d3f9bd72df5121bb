package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"donationledger/internal/utils"
	"donationledger/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxImageBytes bounds a single project or category image upload.
const MaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// S3API is the part of the S3 client the image store calls.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ImageStore keeps project and category images in an S3 bucket.
type ImageStore struct {
	client        S3API
	bucket        string
	publicBaseURL string
}

func NewImageStore(client S3API, bucket, publicBaseURL string) *ImageStore {
	return &ImageStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Upload stores data under prefix and returns the object key. The content
// type is sniffed from the bytes; anything but a common image is rejected.
func (s *ImageStore) Upload(ctx context.Context, prefix string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", types.NewValidationError("image", "is empty")
	}
	if len(data) > MaxImageBytes {
		return "", types.NewValidationError("image", fmt.Sprintf("must be at most %d bytes", MaxImageBytes))
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", types.NewValidationError("image", fmt.Sprintf("unsupported content type %s", contentType))
	}

	key := fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), utils.NanoID(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image %s: %w: %w", key, types.ErrUnavailable, err)
	}

	return key, nil
}

func (s *ImageStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w: %w", key, types.ErrUnavailable, err)
	}
	return nil
}

// PublicURL returns where browsers can fetch the object.
func (s *ImageStore) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}
