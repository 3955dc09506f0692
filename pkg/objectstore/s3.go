package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PageSize        int32
}

// S3Store lists and fetches objects from one S3 bucket.
type S3Store struct {
	client   S3API
	bucket   string
	pageSize int32
}

// NewS3Store builds an S3 client from the default credential chain, or from
// static keys when both are set.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.PageSize), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client S3API, bucket string, pageSize int32) *S3Store {
	return &S3Store{client: client, bucket: bucket, pageSize: pageSize}
}

// List returns one ListObjectsV2 page.
func (s *S3Store) List(ctx context.Context, prefix, token string) (*ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if s.pageSize > 0 {
		input.MaxKeys = aws.Int32(s.pageSize)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
	}

	page := &ListPage{
		Objects:   make([]ObjectSummary, 0, len(out.Contents)),
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, ObjectSummary{
			Key:          aws.ToString(obj.Key),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return page, nil
}

// Get fetches an object. ref.Bucket overrides the store's bucket.
func (s *S3Store) Get(ctx context.Context, ref Ref) (*Object, error) {
	bucket := ref.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, ref.Key)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, ref.Key, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, ref.Key, err)
	}

	return &Object{
		Key:          ref.Key,
		Content:      content,
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}
