// Package deadletter parks events that can never succeed on an SQS dead-letter
// queue and moves them back for reprocessing.
package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/metrics"
)

// Message attribute names set on parked messages.
const (
	AttrParkID   = "parkId"
	AttrCode     = "errorCode"
	AttrCategory = "errorCategory"
	AttrMessage  = "errorMessage"
	AttrSource   = "source"
	AttrParkedAt = "parkedAt"
)

// maxAttrLen keeps error messages well inside the SQS attribute limits.
const maxAttrLen = 1024

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue is a dead-letter queue.
type Queue struct {
	client SQSAPI
	url    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClient injects an SQS client (used for testing).
func WithClient(c SQSAPI) Option {
	return func(q *Queue) { q.client = c }
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a Queue for the dead-letter queue at url.
func New(url string, opts ...Option) (*Queue, error) {
	if url == "" {
		return nil, fmt.Errorf("dead-letter queue URL required")
	}
	q := &Queue{url: url, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	if q.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		q.client = sqs.NewFromConfig(cfg)
	}
	return q, nil
}

// URL returns the dead-letter queue URL.
func (q *Queue) URL() string { return q.url }

// Park sends body to the dead-letter queue annotated with cause, which must
// be non-nil.
func (q *Queue) Park(ctx context.Context, body, source string, cause error) error {
	msg := cause.Error()
	if msg == "" {
		msg = "unknown"
	}
	if len(msg) > maxAttrLen {
		msg = msg[:maxAttrLen]
	}
	id := ulid.Make().String()
	attrs := map[string]sqstypes.MessageAttributeValue{
		AttrParkID:   stringAttr(id),
		AttrCode:     stringAttr(failure.Code(cause)),
		AttrCategory: stringAttr(string(failure.Classify(cause))),
		AttrMessage:  stringAttr(msg),
		AttrParkedAt: stringAttr(q.now().UTC().Format(time.RFC3339)),
	}
	if source != "" {
		attrs[AttrSource] = stringAttr(source)
	}

	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.url),
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("parking message on %s: %w", q.url, err)
	}
	metrics.DeadLettered.Add(1)
	q.logger.Warn("message dead-lettered", "parkId", id, "code", failure.Code(cause), "source", source, "error", cause)
	return nil
}

// Redrive moves up to limit messages from the dead-letter queue to targetURL,
// dropping the park annotations. A limit of zero moves everything.
func (q *Queue) Redrive(ctx context.Context, targetURL string, limit int) (int, error) {
	moved := 0
	for limit <= 0 || moved < limit {
		batch := int32(10)
		if limit > 0 && limit-moved < 10 {
			batch = int32(limit - moved)
		}
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.url),
			MaxNumberOfMessages: batch,
			WaitTimeSeconds:     1,
		})
		if err != nil {
			return moved, fmt.Errorf("receiving from %s: %w", q.url, err)
		}
		if len(out.Messages) == 0 {
			break
		}
		for _, m := range out.Messages {
			if _, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
				QueueUrl:    aws.String(targetURL),
				MessageBody: m.Body,
			}); err != nil {
				return moved, fmt.Errorf("resending %s: %w", aws.ToString(m.MessageId), err)
			}
			if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.url),
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				return moved, fmt.Errorf("deleting %s: %w", aws.ToString(m.MessageId), err)
			}
			moved++
		}
	}
	q.logger.Info("redrive complete", "moved", moved, "target", targetURL)
	return moved, nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
