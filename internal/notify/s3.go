package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink keeps an audit trail of status changes, one object per transition.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

// S3SinkOption configures an S3Sink.
type S3SinkOption func(*S3Sink)

// WithS3Client injects the S3 client.
func WithS3Client(c S3API) S3SinkOption {
	return func(s *S3Sink) { s.client = c }
}

// NewS3Sink creates an audit sink writing under prefix in bucket.
func NewS3Sink(bucket, prefix string, opts ...S3SinkOption) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.New("s3 sink: bucket required")
	}
	s := &S3Sink{bucket: bucket, prefix: strings.Trim(prefix, "/")}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("s3 sink: loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *S3Sink) Name() string { return "s3" }

// ObjectKey returns where n is archived:
// {prefix}/{date}/{email}/{id}-{status}.json, dated by the transition time.
func (s *S3Sink) ObjectKey(n types.Notification) string {
	at := n.Timestamp
	if !n.CompletedAt.IsZero() {
		at = n.CompletedAt
	}
	name := n.ID + "-" + strings.ToLower(string(n.Status)) + ".json"
	return path.Join(s.prefix, at.UTC().Format("2006-01-02"), n.Email, name)
}

// Send archives n as JSON.
func (s *S3Sink) Send(ctx context.Context, n types.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}
	key := s.ObjectKey(n)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"envelope-id": n.EnvelopeID},
	})
	if err != nil {
		return fmt.Errorf("archiving notification to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
