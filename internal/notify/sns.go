package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// maxSNSSubject is the SNS limit on subject length.
const maxSNSSubject = 100

// SNSAPI is the subset of the SNS client used by SNSSink.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes status changes to a topic. On a FIFO topic messages are
// grouped by contract email and deduplicated by envelope and status, so a
// transition published twice is delivered once.
type SNSSink struct {
	client SNSAPI
	topic  string
	fifo   bool
}

// SNSSinkOption configures an SNSSink.
type SNSSinkOption func(*SNSSink)

// WithSNSClient injects the SNS client.
func WithSNSClient(c SNSAPI) SNSSinkOption {
	return func(s *SNSSink) { s.client = c }
}

// NewSNSSink creates a sink for topicARN.
func NewSNSSink(topicARN string, opts ...SNSSinkOption) (*SNSSink, error) {
	if topicARN == "" {
		return nil, errors.New("sns sink: topic ARN required")
	}
	s := &SNSSink{topic: topicARN, fifo: strings.HasSuffix(topicARN, ".fifo")}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("sns sink: loading AWS config: %w", err)
		}
		s.client = sns.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *SNSSink) Name() string { return "sns" }

// Send publishes n as JSON. The status and envelopeId message attributes
// let subscribers filter without decoding the body.
func (s *SNSSink) Send(ctx context.Context, n types.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}

	in := &sns.PublishInput{
		TopicArn: aws.String(s.topic),
		Subject:  aws.String(truncate(Subject(n), maxSNSSubject)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"status":     stringAttr(string(n.Status)),
			"envelopeId": stringAttr(n.EnvelopeID),
		},
	}
	if s.fifo {
		in.MessageGroupId = aws.String(n.Email)
		in.MessageDeduplicationId = aws.String(n.EnvelopeID + "-" + string(n.Status))
	}
	if _, err := s.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publishing %s for %s: %w", n.Status, n.Email, err)
	}
	return nil
}

func stringAttr(v string) snstypes.MessageAttributeValue {
	if v == "" {
		v = "-"
	}
	return snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
