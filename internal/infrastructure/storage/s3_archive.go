// Package storage archives receipt snapshots in object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// S3API is the subset of *s3.Client the archive uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ReceiptArchive stores the canonical text of each receipt as a JSON object.
// It works against AWS S3 and S3-compatible stores (MinIO, RustFS).
type S3ReceiptArchive struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ReceiptArchiveOption configures the archive
type S3ReceiptArchiveOption func(*S3ReceiptArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ReceiptArchiveOption {
	return func(s *S3ReceiptArchive) {
		s.logger = logger
	}
}

// WithClient replaces the S3 client
func WithClient(client S3API) S3ReceiptArchiveOption {
	return func(s *S3ReceiptArchive) {
		s.client = client
	}
}

// NewS3ReceiptArchive builds the archive from configuration
func NewS3ReceiptArchive(ctx context.Context, cfg *config.StorageConfig, opts ...S3ReceiptArchiveOption) (*S3ReceiptArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	archive := &S3ReceiptArchive{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	if archive.prefix == "" {
		archive.prefix = "receipts"
	}
	if archive.client != nil {
		return archive, nil
	}

	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("storage access key and secret are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}
	archive.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return archive, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *S3ReceiptArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating receipt bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads the canonical text. The SHA-256 checksum sent with the
// object is the receipt hash itself, so the store rejects a body that does
// not match it.
func (s *S3ReceiptArchive) Store(ctx context.Context, snapshot *invoicing.ReceiptSnapshot) error {
	digest, err := hex.DecodeString(snapshot.SHA256Hash)
	if err != nil {
		return fmt.Errorf("receipt %s has malformed hash: %w", snapshot.ID, err)
	}
	key := s.ObjectKey(snapshot)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader([]byte(snapshot.CanonicalSnapshot)),
		ContentType:       aws.String("application/json"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(base64.StdEncoding.EncodeToString(digest)),
		Metadata: map[string]string{
			"receipt-number": snapshot.ReceiptNumber,
			"payment-id":     snapshot.PaymentID.String(),
			"sha256":         snapshot.SHA256Hash,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive receipt %s: %w", snapshot.ID, err)
	}
	s.logger.Debug("Receipt archived", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}

// ObjectKey returns prefix/tenant/yyyy/mm/receipt-number_id.json
func (s *S3ReceiptArchive) ObjectKey(snapshot *invoicing.ReceiptSnapshot) string {
	created := snapshot.CreatedAt.UTC()
	return path.Join(
		s.prefix,
		snapshot.TenantID.String(),
		created.Format("2006"),
		created.Format("01"),
		fmt.Sprintf("%s_%s.json", snapshot.ReceiptNumber, snapshot.ID),
	)
}

var _ appinvoicing.ReceiptArchive = (*S3ReceiptArchive)(nil)
