// sweeper Lambda recovers missed work. Invoked by EventBridge on a regular
// interval with an empty payload it backfills un-ingested uploads and polls
// stale envelopes; invoked by a follow-up schedule it checks one envelope.
package main

import (
	"context"
	"errors"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/contractsync/internal/failure"
	intlambda "github.com/dwsmith1983/contractsync/internal/lambda"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/sweeper"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background(), "contractsync-sweeper")
		if depsErr == nil && deps.Sweeper == nil {
			depsErr = errors.New("sweeper requires DOCUSIGN_CLIENT_ID and DOCUSIGN_PRIVATE_KEY_SECRET")
		}
	})
	return deps, depsErr
}

// Output is the sweeper Lambda result.
type Output struct {
	Report *sweeper.Report   `json:"report,omitempty"`
	Check  *reconcile.Result `json:"check,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func handleSweep(ctx context.Context, d *intlambda.Deps, req intlambda.SweepRequest) (Output, error) {
	if req.EnvelopeID == "" {
		rep, err := d.Sweeper.Run(ctx)
		return Output{Report: &rep}, err
	}

	res, err := d.Sweeper.Check(ctx, req)
	if err == nil {
		d.Logger.Info("follow-up check complete", "envelopeId", req.EnvelopeID, "outcome", res.Outcome)
		return Output{Check: &res}, nil
	}
	// Not found and conflicts are final; only transient faults are retried
	// by the scheduler.
	if failure.Retryable(err) {
		return Output{}, err
	}
	d.Logger.Warn("follow-up check finished without update", "envelopeId", req.EnvelopeID,
		"code", failure.Code(err), "error", err)
	return Output{Check: &res, Error: failure.Code(err)}, nil
}

func handler(ctx context.Context, req intlambda.SweepRequest) (Output, error) {
	d, err := getDeps()
	if err != nil {
		return Output{}, err
	}
	defer d.Flush(ctx)
	return handleSweep(ctx, d, req)
}

func main() {
	awslambda.Start(handler)
}
