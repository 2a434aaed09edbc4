// Package gcs stores prescription images in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const uploadTimeout = 2 * time.Minute

// ImageStore reads and writes objects in one bucket.
// It assumes Application Default Credentials unless options say otherwise.
type ImageStore struct {
	client *storage.Client
	bucket string
}

// NewImageStore creates a storage client for bucket.
func NewImageStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*ImageStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewImageStore: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewImageStore: create storage client: %w", err)
	}
	return &ImageStore{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *ImageStore) Close() error {
	return s.client.Close()
}

// Bucket returns the bucket name.
func (s *ImageStore) Bucket() string {
	return s.bucket
}

// UploadImage writes data to objectName and returns its gs:// URI.
func (s *ImageStore) UploadImage(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadImage: write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadImage: finalize %s: %w", objectName, err)
	}

	return URI(s.bucket, objectName), nil
}

// UploadFile uploads a local file under objectName.
func (s *ImageStore) UploadFile(ctx context.Context, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadFile: copy to %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadFile: finalize %s: %w", objectName, err)
	}

	return URI(s.bucket, objectName), nil
}

// FetchImage downloads the object behind a gs:// URI. The URI may name any
// bucket the credentials can read.
func (s *ImageStore) FetchImage(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("FetchImage: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchImage: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchImage: reading bytes: %w", err)
	}
	return data, nil
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a GCS URI.
// e.g., "gs://bucket/prescriptions/2025/01/02/x.png" → "x.png"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
