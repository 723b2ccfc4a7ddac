// Package followup schedules a one-shot envelope status check after a
// contract is sent, using EventBridge Scheduler.
package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// DefaultDelay is how long after sending the status check runs.
const DefaultDelay = 72 * time.Hour

// SchedulerAPI is the subset of the EventBridge Scheduler client used here.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
}

// Scheduler creates follow-up schedules targeting the sweeper.
type Scheduler struct {
	client    SchedulerAPI
	targetARN string
	roleARN   string
	group     string
	delay     time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClient injects a scheduler client (used for testing).
func WithClient(c SchedulerAPI) Option {
	return func(s *Scheduler) { s.client = c }
}

// WithGroup places schedules in a named schedule group.
func WithGroup(group string) Option {
	return func(s *Scheduler) { s.group = group }
}

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// New creates a Scheduler invoking targetARN with roleARN.
func New(targetARN, roleARN string, opts ...Option) (*Scheduler, error) {
	if targetARN == "" || roleARN == "" {
		return nil, fmt.Errorf("follow-up target and role ARNs are required")
	}
	s := &Scheduler{targetARN: targetARN, roleARN: roleARN, delay: DefaultDelay}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = scheduler.NewFromConfig(cfg)
	}
	return s, nil
}

// Schedule creates a one-shot schedule at rec.CreatedAt plus the delay. The
// schedule deletes itself after running. An existing schedule for the same
// envelope is left in place.
func (s *Scheduler) Schedule(ctx context.Context, rec types.ContractRecord) error {
	payload, err := json.Marshal(types.SweepRequest{EnvelopeID: rec.EnvelopeID, Email: rec.Email})
	if err != nil {
		return fmt.Errorf("marshaling follow-up payload: %w", err)
	}

	at := rec.CreatedAt.Add(s.delay).UTC()
	input := &scheduler.CreateScheduleInput{
		Name:                       aws.String(ScheduleName(rec.EnvelopeID)),
		ScheduleExpression:         aws.String(AtExpression(at)),
		ScheduleExpressionTimezone: aws.String("UTC"),
		FlexibleTimeWindow:         &schedtypes.FlexibleTimeWindow{Mode: schedtypes.FlexibleTimeWindowModeOff},
		ActionAfterCompletion:      schedtypes.ActionAfterCompletionDelete,
		Target: &schedtypes.Target{
			Arn:     aws.String(s.targetARN),
			RoleArn: aws.String(s.roleARN),
			Input:   aws.String(string(payload)),
		},
	}
	if s.group != "" {
		input.GroupName = aws.String(s.group)
	}

	if _, err := s.client.CreateSchedule(ctx, input); err != nil {
		var conflict *schedtypes.ConflictException
		if errors.As(err, &conflict) {
			return nil
		}
		return fmt.Errorf("creating follow-up schedule for %s: %w", rec.EnvelopeID, err)
	}
	return nil
}

// AtExpression formats a one-time schedule expression.
func AtExpression(t time.Time) string {
	return "at(" + t.Format("2006-01-02T15:04:05") + ")"
}

// ScheduleName derives a valid schedule name from an envelope id.
// Valid: a-z, A-Z, 0-9, -, _, . (max 64 chars)
func ScheduleName(envelopeID string) string {
	var b strings.Builder
	b.WriteString("contract-")
	for _, c := range envelopeID {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
