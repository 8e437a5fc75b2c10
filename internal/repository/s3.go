package repository

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/atinyakov/cortexvault/internal/models"
)

const (
	metaTokenHash = "token-hash"
	metaUpdatedAt = "updated-at"
)

// S3API is the subset of the S3 client used by S3VaultRepository.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds the connection settings for an S3 compatible store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Key      string
	Secret   string
}

// NewS3Client builds an S3 client. Static credentials are used when Key is
// set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Key != "" {
		creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""))
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3VaultRepository stores each vault as one object under vaults/<accountId>.
// The token hash and upload time travel as object metadata. S3 has no soft
// delete, so SoftDelete removes the object right away.
type S3VaultRepository struct {
	client S3API
	bucket string
}

// NewS3VaultRepository returns a repository writing to bucket.
func NewS3VaultRepository(client S3API, bucket string) *S3VaultRepository {
	return &S3VaultRepository{client: client, bucket: bucket}
}

func (r *S3VaultRepository) key(accountID string) *string {
	return aws.String("vaults/" + accountID)
}

func (r *S3VaultRepository) Get(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    r.key(accountID),
	})
	if err != nil {
		return nil, mapS3Error("get vault", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("get vault: read body: %w", err)
	}
	rec, err := recordFromMetadata(accountID, out.Metadata, out.LastModified)
	if err != nil {
		return nil, err
	}
	rec.Blob = blob
	return rec, nil
}

func (r *S3VaultRepository) Stat(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    r.key(accountID),
	})
	if err != nil {
		return nil, mapS3Error("stat vault", err)
	}
	return recordFromMetadata(accountID, out.Metadata, out.LastModified)
}

// Put checks the stored token hash before overwriting. The check and the
// write are two requests, so two racing first uploads may both succeed.
func (r *S3VaultRepository) Put(ctx context.Context, rec models.VaultRecord) error {
	cur, err := r.Stat(ctx, rec.AccountID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return err
	case !bytes.Equal(cur.TokenHash, rec.TokenHash):
		return models.ErrTokenMismatch
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         r.key(rec.AccountID),
		Body:        bytes.NewReader(rec.Blob),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			metaTokenHash: hex.EncodeToString(rec.TokenHash),
			metaUpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return mapS3Error("put vault", err)
	}
	return nil
}

func (r *S3VaultRepository) SoftDelete(ctx context.Context, accountID string, _ time.Time) error {
	if _, err := r.Stat(ctx, accountID); err != nil {
		return err
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    r.key(accountID),
	})
	if err != nil {
		return mapS3Error("delete vault", err)
	}
	return nil
}

func recordFromMetadata(accountID string, meta map[string]string, lastModified *time.Time) (*models.VaultRecord, error) {
	hash, err := hex.DecodeString(meta[metaTokenHash])
	if err != nil {
		return nil, fmt.Errorf("vault %s: bad token hash metadata: %w", accountID, err)
	}
	rec := &models.VaultRecord{AccountID: accountID, TokenHash: hash}
	if ts, err := time.Parse(time.RFC3339Nano, meta[metaUpdatedAt]); err == nil {
		rec.UpdatedAt = ts
	} else if lastModified != nil {
		rec.UpdatedAt = *lastModified
	}
	return rec, nil
}

func mapS3Error(op string, err error) error {
	var noKey *s3Types.NoSuchKey
	var notFound *s3Types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return models.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
