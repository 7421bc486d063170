package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
	"github.com/r3aper2020/Gamut-MGMT/pkg/observability"
)

// S3Config configures the object storage archive
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ObjectAPI is the subset of the S3 client used by the archiver
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// NewS3Client builds an S3 client from cfg. Static keys are used when set; otherwise the default credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Archiver batches events and uploads them as NDJSON objects
type S3Archiver struct {
	client    ObjectAPI
	bucket    string
	prefix    string
	batchSize int
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	buf    []*Event
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewS3Archiver creates an archiver. Batches flush at batchSize events or every interval.
func NewS3Archiver(client ObjectAPI, bucket, prefix string, batchSize int, interval time.Duration) (*S3Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if prefix == "" {
		prefix = "audit"
	}

	a := &S3Archiver{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if interval > 0 {
		go a.loop()
	} else {
		close(a.done)
	}
	return a, nil
}

// Name implements Named
func (a *S3Archiver) Name() string {
	return "s3"
}

func (a *S3Archiver) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.Flush(context.Background()); err != nil {
				observability.Default().WithError(err).Warn("audit archive flush failed")
			}
		case <-a.stop:
			return
		}
	}
}

// Log buffers the event and uploads once the batch is full
func (a *S3Archiver) Log(ctx context.Context, event *Event) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("audit archiver is closed")
	}
	a.buf = append(a.buf, event)
	full := len(a.buf) >= a.batchSize
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Pending reports the number of buffered events
func (a *S3Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Flush uploads buffered events. On failure the batch is put back for the next attempt.
func (a *S3Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := a.upload(ctx, batch); err != nil {
		a.mu.Lock()
		a.buf = append(batch, a.buf...)
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *S3Archiver) upload(ctx context.Context, batch []*Event) (err error) {
	key := a.objectKey()
	ctx, span := observability.StartSpan(ctx, "audit.archive")
	span.SetAttributes(
		attribute.String("s3.bucket", a.bucket),
		attribute.String("s3.key", key),
		attribute.Int("audit.events", len(batch)),
	)
	defer func() { observability.EndSpan(span, err) }()

	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	for _, event := range batch {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode audit event: %w", err)
		}
	}

	hash := sha256.Sum256(body.Bytes())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"event-count":     fmt.Sprintf("%d", len(batch)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload audit batch: %w", err)
	}
	return nil
}

// objectKey partitions objects by UTC day
func (a *S3Archiver) objectKey() string {
	now := a.now().UTC()
	return path.Join(a.prefix, now.Format("2006/01/02"), ids.NewLower()+".ndjson")
}

// Ping verifies the bucket is reachable
func (a *S3Archiver) Ping(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// Close stops the flush loop and uploads what is left
func (a *S3Archiver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	if a.interval > 0 {
		close(a.stop)
	}
	<-a.done

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Flush(ctx)
}
