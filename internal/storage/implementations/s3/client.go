package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/pkg/errors"
)

// S3Config holds configuration for output uploads
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" mapstructure:"part_size"`
	UseCompression  bool          `json:"use_compression" mapstructure:"use_compression"`
	StorageClass    string        `json:"storage_class" mapstructure:"storage_class"`
}

// Uploader copies finished output files to an S3 bucket.
type Uploader struct {
	config   *S3Config
	uploader s3manageriface.UploaderAPI
	logger   *logrus.Logger
	mu       sync.Mutex
	metrics  *uploadMetrics
}

type uploadMetrics struct {
	uploads      int64
	errorCount   int64
	bytesWritten int64
}

// NewUploader creates an uploader backed by a new AWS session.
func NewUploader(config *S3Config, logger *logrus.Logger) (*Uploader, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	awsConfig := &aws.Config{
		Region:     aws.String(config.Region),
		MaxRetries: aws.Int(config.MaxRetries),
	}

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			config.SessionToken,
		)
	}

	// S3-compatible services
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(config.ForcePathStyle)
	}

	if config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeUploadFailed, "Failed to create AWS session")
	}

	uploader := s3manager.NewUploader(sess)
	if config.PartSize > 0 {
		uploader.PartSize = config.PartSize
	}

	return NewUploaderWithAPI(uploader, config, logger)
}

// NewUploaderWithAPI wraps an existing s3manager uploader.
func NewUploaderWithAPI(api s3manageriface.UploaderAPI, config *S3Config, logger *logrus.Logger) (*Uploader, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Uploader{
		config:   config,
		uploader: api,
		logger:   logger,
		metrics:  &uploadMetrics{},
	}, nil
}

func validateConfig(config *S3Config) error {
	if config == nil {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	return nil
}

// Upload sends the file at localPath to the bucket and returns its s3:// location.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		u.incrementErrorCount()
		return "", errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeUploadFailed,
			fmt.Sprintf("Failed to read '%s' for upload", localPath))
	}

	key := u.generateKey(filepath.Base(localPath))
	var body io.Reader = bytes.NewReader(data)
	size := len(data)

	input := &s3manager.UploadInput{
		Bucket:      aws.String(u.config.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(localPath)),
		Metadata: map[string]*string{
			"source-file": aws.String(filepath.Base(localPath)),
			"uploaded-at": aws.String(time.Now().UTC().Format(time.RFC3339)),
		},
	}

	if u.config.UseCompression {
		var buf bytes.Buffer
		gzWriter := gzip.NewWriter(&buf)
		if _, err := gzWriter.Write(data); err != nil {
			u.incrementErrorCount()
			return "", errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeUploadFailed, "Failed to compress output")
		}
		if err := gzWriter.Close(); err != nil {
			u.incrementErrorCount()
			return "", errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeUploadFailed, "Failed to compress output")
		}
		body = bytes.NewReader(buf.Bytes())
		size = buf.Len()
		input.ContentEncoding = aws.String("gzip")
	}
	input.Body = body

	if u.config.StorageClass != "" {
		input.StorageClass = aws.String(u.config.StorageClass)
	}

	if u.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	if _, err := u.uploader.UploadWithContext(ctx, input); err != nil {
		u.incrementErrorCount()
		return "", errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeUploadFailed, "Failed to upload to S3")
	}

	u.mu.Lock()
	u.metrics.uploads++
	u.metrics.bytesWritten += int64(size)
	u.mu.Unlock()

	location := fmt.Sprintf("s3://%s/%s", u.config.Bucket, key)
	u.logger.WithFields(logrus.Fields{
		"location": location,
		"bytes":    size,
		"duration": time.Since(start),
	}).Info("Uploaded output")

	return location, nil
}

// Stats returns upload, error and byte counts.
func (u *Uploader) Stats() map[string]int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return map[string]int64{
		"uploads":       u.metrics.uploads,
		"errors":        u.metrics.errorCount,
		"bytes_written": u.metrics.bytesWritten,
	}
}

func (u *Uploader) generateKey(name string) string {
	prefix := strings.TrimSuffix(u.config.Prefix, "/")
	if u.config.UseCompression {
		name += ".gz"
	}
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (u *Uploader) incrementErrorCount() {
	u.mu.Lock()
	u.metrics.errorCount++
	u.mu.Unlock()
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
