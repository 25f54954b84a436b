package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the part of *s3.Client the repository needs.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds construction parameters for NewS3Client.
type S3Config struct {
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible servers
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// NewS3Client builds an S3 client from cfg. A custom endpoint switches to
// path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Repository keeps one object per key under <prefix>/<namespace>/.
// CompareAndSwap relies on conditional writes (If-Match / If-None-Match).
type S3Repository struct {
	client s3API
	bucket string
	root   string
}

func NewS3Repository(client s3API, bucket, prefix, namespace string) (*S3Repository, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	if namespace == "" {
		return nil, errors.New("s3 namespace required")
	}
	return &S3Repository{
		client: client,
		bucket: bucket,
		root:   path.Join(prefix, namespace) + "/",
	}, nil
}

func (r *S3Repository) objectKey(key string) string {
	return r.root + key
}

// get returns the object body and its ETag, or (nil, "", nil) when absent.
func (r *S3Repository) get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to get object[%s]: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object[%s]: %w", key, err)
	}
	return data, aws.ToString(out.ETag), nil
}

func (r *S3Repository) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := r.get(ctx, key)
	return data, err
}

func (r *S3Repository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("failed to put object[%s]: %w", key, err)
	}
	return nil
}

func (r *S3Repository) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object[%s]: %w", key, err)
	}
	return nil
}

func (r *S3Repository) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
		Body:   bytes.NewReader(next),
	}

	if old == nil {
		in.IfNoneMatch = aws.String("*")
	} else {
		cur, etag, err := r.get(ctx, key)
		if err != nil {
			return false, err
		}
		if cur == nil || !bytes.Equal(cur, old) {
			return false, nil
		}
		in.IfMatch = aws.String(etag)
	}

	if _, err := r.client.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to swap object[%s]: %w", key, err)
	}
	return true, nil
}

func (r *S3Repository) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		n     int64
		token *string
	)
	for {
		out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(r.objectKey(prefix)),
			ContinuationToken: token,
		})
		if err != nil {
			return n, fmt.Errorf("failed to list objects[%s*]: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(r.bucket),
				Key:    obj.Key,
			})
			if err != nil && !isNotFound(err) {
				return n, fmt.Errorf("failed to delete object[%s]: %w", aws.ToString(obj.Key), err)
			}
			n++
		}

		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		return n, nil
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

var (
	_ Repository    = (*S3Repository)(nil)
	_ Swapper       = (*S3Repository)(nil)
	_ PrefixDeleter = (*S3Repository)(nil)
)
