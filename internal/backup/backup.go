// Package backup uploads snapshots of the SQLite state database to
// object storage before schema migrations run.
package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Client handles snapshot uploads to a MinIO bucket.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// Enabled reports whether snapshot uploads are configured. Backups are
// optional; without MINIO_ENDPOINT the daemon migrates without one.
func Enabled() bool {
	return os.Getenv("MINIO_ENDPOINT") != ""
}

// NewClient creates a backup client from MINIO_* environment
// variables.
func NewClient() (*Client, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT environment variable is required")
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "sktm-backups"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = os.Getenv("MINIO_ACCESS_KEY_ID")
	}

	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if secretKey == "" {
		secretKey = os.Getenv("MINIO_SECRET_ACCESS_KEY")
	}

	if accessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY or MINIO_ACCESS_KEY_ID environment variable is required")
	}
	if secretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY or MINIO_SECRET_ACCESS_KEY environment variable is required")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT '%s': %w (expected format: https://hostname:port)", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT scheme '%s': must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT '%s': missing hostname", endpoint)
	}

	minioClient, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client for %s: %w", u.Host, err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      bucket,
	}, nil
}

// SnapshotObjectName builds the object key for a database snapshot.
func SnapshotObjectName(dbPath string, now time.Time) string {
	base := filepath.Base(dbPath)
	return fmt.Sprintf("%s.%s", base, now.UTC().Format("20060102T150405Z"))
}

// UploadSnapshot copies the database file to the backup bucket under a
// timestamped object name and returns the name.
func (c *Client) UploadSnapshot(ctx context.Context, dbPath string) (string, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat database file: %w", err)
	}

	objectName := SnapshotObjectName(dbPath, time.Now())

	_, err = c.minioClient.FPutObject(ctx, c.bucket, objectName, dbPath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"object": objectName,
		"bytes":  info.Size(),
	}).Info("Uploaded database snapshot")

	return objectName, nil
}
