package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/backend/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

const (
	MaxAttachmentSize = 10 << 20

	ComplaintFolder  = "complaints"
	ResolutionFolder = "resolutions"
)

var (
	ErrUnsupportedFile = errors.New("unsupported attachment type")
	ErrFileTooLarge    = errors.New("attachment too large")
)

var allowedContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
}

// MinIOStorage holds complaint and resolution attachments. Objects are
// private; clients read them through presigned URLs.
type MinIOStorage struct {
	client     *minio.Client
	bucketName string
	logger     *logrus.Logger
}

func NewMinIOStorage(cfg *config.MinIOConfig, logger *logrus.Logger) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.WithField("bucket", cfg.BucketName).Info("attachment bucket created")
	}

	logger.WithField("endpoint", cfg.Endpoint).Info("MinIO storage connected successfully")
	return &MinIOStorage{client: client, bucketName: cfg.BucketName, logger: logger}, nil
}

// ValidateUpload checks an incoming file before it is streamed to the bucket
// and returns the content type to store it with.
func ValidateUpload(filename, contentType string, size int64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedFile)
	}
	if size > MaxAttachmentSize {
		return "", fmt.Errorf("%w: %d bytes, at most %d allowed", ErrFileTooLarge, size, MaxAttachmentSize)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	expected, ok := allowedContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		return expected, nil
	}
	return contentType, nil
}

// ObjectName builds the bucket key for an upload: <folder>/<yyyy>/<mm>/<uuid><ext>.
func ObjectName(folder, filename string, id uuid.UUID, at time.Time) string {
	if folder != ResolutionFolder {
		folder = ComplaintFolder
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s/%s%s", folder, at.UTC().Format("2006/01"), id.String(), ext)
}

func (s *MinIOStorage) UploadAttachment(ctx context.Context, file io.Reader, filename, contentType string, size int64, folder string) (string, error) {
	contentType, err := ValidateUpload(filename, contentType, size)
	if err != nil {
		return "", err
	}

	objectName := ObjectName(folder, filename, uuid.New(), time.Now())
	_, err = s.client.PutObject(ctx, s.bucketName, objectName, file, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		config.LogError(s.logger, "storage", "UploadAttachment", "put object failed", objectName, err)
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return objectName, nil
}

func (s *MinIOStorage) GetFileURL(ctx context.Context, objectName string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, time.Hour*24, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get presigned URL: %w", err)
	}
	return presignedURL.String(), nil
}

func (s *MinIOStorage) FileExists(ctx context.Context, objectName string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucketName)
	}
	return nil
}
