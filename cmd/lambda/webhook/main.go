// webhook Lambda receives DocuSign Connect deliveries through API Gateway and
// reconciles them against the record store.
package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/contractsync/internal/failure"
	intlambda "github.com/dwsmith1983/contractsync/internal/lambda"
	"github.com/dwsmith1983/contractsync/internal/metrics"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
)

const serviceName = "contractsync-webhook"

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background(), serviceName)
	})
	return deps, depsErr
}

func handleRequest(ctx context.Context, d *intlambda.Deps, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	switch req.HTTPMethod {
	case http.MethodGet:
		return intlambda.JSONResponse(http.StatusOK, map[string]string{
			"status":    "healthy",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	case http.MethodPost:
	default:
		return intlambda.JSONResponse(http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}

	body, err := intlambda.RequestBody(req)
	if err != nil {
		return intlambda.JSONResponse(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if d.Verifier.Enabled() {
		if err := d.Verifier.Verify(intlambda.RequestHeaders(req), body); err != nil {
			metrics.InvalidSignatures.Add(1)
			d.Logger.Warn("rejecting webhook", "sourceIp", req.RequestContext.Identity.SourceIP, "error", err)
			return intlambda.JSONResponse(reconcile.Reply(reconcile.Result{}, err))
		}
	}

	res, err := d.Reconcile.Handle(ctx, body)
	if err != nil && failure.HTTPStatus(err) >= http.StatusInternalServerError {
		d.Logger.Error("webhook handling failed", "envelopeId", res.EnvelopeID, "code", failure.Code(err), "error", err)
	}
	return intlambda.JSONResponse(reconcile.Reply(res, err))
}

func handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	d, err := getDeps()
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	defer d.Flush(ctx)
	return handleRequest(ctx, d, req), nil
}

func main() {
	awslambda.Start(handler)
}
