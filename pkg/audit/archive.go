package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Archiver receives entries the retention trim is about to delete
type Archiver interface {
	Archive(ctx context.Context, entries []Entry) error
}

// ObjectPutter is the subset of the S3 client the archiver uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Archiver
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Archiver writes each batch of evicted entries as one NDJSON object
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
	tracer trace.Tracer
}

// NewS3Archiver loads AWS configuration and builds an archiver. Static
// credentials are used when both keys are set (MinIO, explicit keys);
// otherwise the default credential chain applies.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient builds an archiver over an existing client
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		tracer: otel.Tracer("github.com/platinummonkey/controlplane/pkg/audit"),
	}
}

func (a *S3Archiver) Archive(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	key := a.objectKey(entries)
	ctx, span := a.tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.Int("audit.entries", len(entries)),
		),
	)
	defer span.End()

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := encoder.Encode(e); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to encode entries")
			return fmt.Errorf("failed to encode audit entry %s: %w", e.ID, err)
		}
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload audit archive: %w", err)
	}

	span.SetStatus(codes.Ok, "archive uploaded")
	return nil
}

// objectKey is <prefix>/<yyyy>/<mm>/<dd>/<oldest id>-<newest id>.ndjson.
// entries arrive newest first.
func (a *S3Archiver) objectKey(entries []Entry) string {
	day := a.now().UTC().Format("2006/01/02")
	name := fmt.Sprintf("%s-%s.ndjson", entries[len(entries)-1].ID, entries[0].ID)
	return path.Join(a.prefix, day, name)
}
