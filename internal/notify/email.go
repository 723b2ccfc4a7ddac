package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// SESAPI is the subset of the SES v2 client used by EmailSink.
type SESAPI interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailSink emails notifications to a fixed recipient list through SES.
type EmailSink struct {
	client SESAPI
	from   string
	to     []string
}

// EmailSinkOption configures an EmailSink.
type EmailSinkOption func(*EmailSink)

// WithSESClient sets a custom SES client (useful for testing).
func WithSESClient(c SESAPI) EmailSinkOption {
	return func(s *EmailSink) { s.client = c }
}

// NewEmailSink creates a new SES email sink.
func NewEmailSink(from string, to []string, opts ...EmailSinkOption) (*EmailSink, error) {
	if from == "" || len(to) == 0 {
		return nil, fmt.Errorf("email sender and recipients required")
	}
	s := &EmailSink{from: from, to: to}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = sesv2.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *EmailSink) Name() string { return "email" }

// Send emails a plain-text summary of the notification.
func (s *EmailSink) Send(ctx context.Context, n types.Notification) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &sestypes.Destination{ToAddresses: s.to},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(Subject(n)), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(emailBody(n)), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func emailBody(n types.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract status: %s (was %s)\n", n.Status.DisplayName(), n.PreviousStatus.DisplayName())
	fmt.Fprintf(&b, "Signer: %s <%s>\n", n.Name, n.Email)
	fmt.Fprintf(&b, "Envelope: %s\n", n.EnvelopeID)
	if !n.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Completed at: %s\n", n.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
