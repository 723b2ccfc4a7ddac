// ingest Lambda turns uploaded contracts into signing envelopes.
// Invoked by SQS with S3 ObjectCreated notifications, or directly by S3.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/contractsync/internal/failure"
	intlambda "github.com/dwsmith1983/contractsync/internal/lambda"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// maxConcurrency bounds the uploads of one SQS batch handled at once.
const maxConcurrency = 5

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background(), "contractsync-ingest")
		if depsErr == nil && deps.Ingest == nil {
			depsErr = errors.New("ingest requires DOCUSIGN_CLIENT_ID and DOCUSIGN_PRIVATE_KEY_SECRET")
		}
	})
	return deps, depsErr
}

// invocation sniffs the event source of the first record.
type invocation struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
}

func handler(ctx context.Context, raw json.RawMessage) (any, error) {
	d, err := getDeps()
	if err != nil {
		return nil, err
	}
	defer d.Flush(ctx)

	var inv invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decoding invocation: %w", err)
	}
	if len(inv.Records) > 0 && inv.Records[0].EventSource == "aws:sqs" {
		var ev events.SQSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decoding SQS event: %w", err)
		}
		return handleBatch(ctx, d, ev), nil
	}

	var ev events.S3Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding S3 event: %w", err)
	}
	return nil, handleS3(ctx, d, ev)
}

// handleBatch ingests every message of an SQS batch concurrently. Messages
// that failed transiently are reported back for redelivery; permanent and
// terminal failures are parked on the dead-letter queue.
func handleBatch(ctx context.Context, d *intlambda.Deps, ev events.SQSEvent) events.SQSEventResponse {
	var (
		mu   sync.Mutex
		resp events.SQSEventResponse
	)
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrency)
	for _, msg := range ev.Records {
		g.Go(func() error {
			if err := handleMessage(ctx, d, msg); err != nil {
				d.Logger.Warn("message will be redelivered", "messageId", msg.MessageId, "error", err)
				mu.Lock()
				resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return resp
}

// handleMessage ingests each upload in one notification. A record that can
// never succeed is parked on its own, re-encoded as a single-record
// notification, so a redrive replays only that upload.
func handleMessage(ctx context.Context, d *intlambda.Deps, msg events.SQSMessage) error {
	ev, err := intlambda.S3EventFromSQS(msg)
	if err != nil {
		return park(ctx, d, msg.Body, err)
	}
	var errs []error
	for _, rec := range ev.Records {
		up, ok, err := intlambda.UploadEventFromRecord(rec)
		if err == nil && !ok {
			continue
		}
		if err == nil {
			err = ingestOne(ctx, d, up)
		}
		if err == nil {
			continue
		}
		if failure.Retryable(err) {
			errs = append(errs, err)
			continue
		}
		if err := parkRecord(ctx, d, rec, err); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parkRecord(ctx context.Context, d *intlambda.Deps, rec events.S3EventRecord, cause error) error {
	body, err := json.Marshal(events.S3Event{Records: []events.S3EventRecord{rec}})
	if err != nil {
		return fmt.Errorf("encoding parked record: %w", err)
	}
	return park(ctx, d, string(body), cause)
}

func handleS3(ctx context.Context, d *intlambda.Deps, ev events.S3Event) error {
	ups, err := intlambda.UploadEvents(ev)
	if err != nil {
		d.Logger.Error("dropping S3 event", "error", err)
		return nil
	}
	var errs []error
	for _, up := range ups {
		if err := ingestOne(ctx, d, up); err != nil && failure.Retryable(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ingestOne(ctx context.Context, d *intlambda.Deps, up types.UploadEvent) error {
	res, err := d.Ingest.Handle(ctx, up)
	if err != nil {
		d.Logger.Error("ingestion failed", "key", up.Key, "code", failure.Code(err),
			"category", failure.Classify(err), "error", err)
		return err
	}
	d.Logger.Info("ingested", "key", up.Key, "email", res.Record.Email, "envelopeId", res.Record.EnvelopeID, "outcome", res.Outcome)
	return nil
}

// park moves a message that can never succeed to the dead-letter queue.
// Without a queue it is logged and acknowledged.
func park(ctx context.Context, d *intlambda.Deps, body string, cause error) error {
	if d.DeadLetter == nil {
		d.Logger.Error("dropping unprocessable upload", "code", failure.Code(cause), "error", cause)
		return nil
	}
	source := ""
	if d.Config != nil && d.Config.DeadLetter != nil {
		source = d.Config.DeadLetter.SourceURL
	}
	if err := d.DeadLetter.Park(ctx, body, source, cause); err != nil {
		return fmt.Errorf("parking message: %w", err)
	}
	return nil
}

func main() {
	awslambda.Start(handler)
}
