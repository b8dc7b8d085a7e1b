package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Compile-time check that S3Engine implements Engine.
var _ Engine = (*S3Engine)(nil)

// S3Config holds the configuration for the S3 engine.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Optional: key prefix, defaults to "records/"
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3API is the subset of the S3 client used by S3Engine.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Engine implements Engine with one object per record.
// A single PutObject is the atomic write unit.
type S3Engine struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// S3 error codes that mean the bucket cannot be used at all.
var unavailableCodes = map[string]bool{
	"NoSuchBucket":          true,
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
}

// classifyS3Error maps S3 failures onto the engine errors.
func classifyS3Error(op string, err error) error {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "PreconditionFailed":
			return ErrDuplicateID
		case unavailableCodes[code]:
			return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// NewS3Engine creates an S3Engine from cfg, loading the default AWS
// configuration chain unless static credentials are given.
func NewS3Engine(ctx context.Context, cfg S3Config, opts ...EngineOption) (*S3Engine, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3EngineWithClient(s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Prefix, opts...), nil
}

// NewS3EngineWithClient creates an S3Engine around an existing client.
func NewS3EngineWithClient(client S3API, bucket, prefix string, opts ...EngineOption) *S3Engine {
	if prefix == "" {
		prefix = "records/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	o := newEngineOptions(opts)
	return &S3Engine{client: client, bucket: bucket, prefix: prefix, logger: o.logger}
}

func (e *S3Engine) key(id string) string {
	return e.prefix + id + recordExt
}

// Put uploads the record as a single JSON object. The upload is
// conditional on the key being absent, so an ID is never overwritten.
func (e *S3Engine) Put(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(e.key(rec.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return classifyS3Error("upload record to S3", err)
	}
	return nil
}

// Get downloads a record by its ID.
func (e *S3Engine) Get(ctx context.Context, id string) (Record, error) {
	if id == "" || strings.Contains(id, "/") {
		return Record{}, ErrNotFound
	}
	return e.getKey(ctx, e.key(id))
}

func (e *S3Engine) getKey(ctx context.Context, key string) (Record, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return Record{}, ErrNotFound
		}
		return Record{}, classifyS3Error("download record from S3", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Record{}, fmt.Errorf("read record body: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
	}
	return rec, nil
}

// List downloads every record under the prefix.
func (e *S3Engine) List(ctx context.Context) ([]Record, error) {
	paginator := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(e.prefix),
	})

	var records []Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list records in S3", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, recordExt) {
				continue
			}
			rec, err := e.getKey(ctx, key)
			if err != nil {
				if skippable(err) {
					e.logger.Warn("skipping unreadable record",
						slog.String("key", key),
						slog.String("error", err.Error()),
					)
					continue
				}
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
