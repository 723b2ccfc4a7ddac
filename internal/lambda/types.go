// Package lambda provides shared types and initialization for Lambda handlers.
package lambda

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/contractsync/internal/objectkey"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// SweepRequest is the input to the sweeper Lambda. An EventBridge schedule
// invokes it with an empty payload; a follow-up schedule names one envelope.
type SweepRequest = types.SweepRequest

// UploadEvents extracts object-created uploads from an S3 notification.
// Object keys arrive URL-encoded and are decoded here.
func UploadEvents(ev events.S3Event) ([]types.UploadEvent, error) {
	out := make([]types.UploadEvent, 0, len(ev.Records))
	for _, rec := range ev.Records {
		up, ok, err := UploadEventFromRecord(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, up)
		}
	}
	return out, nil
}

// UploadEventFromRecord converts one notification record. ok is false for
// records that are not object creations.
func UploadEventFromRecord(rec events.S3EventRecord) (types.UploadEvent, bool, error) {
	if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
		return types.UploadEvent{}, false, nil
	}
	key, err := objectkey.Unescape(rec.S3.Object.Key)
	if err != nil {
		return types.UploadEvent{}, false, err
	}
	return types.UploadEvent{
		Bucket: rec.S3.Bucket.Name,
		Key:    key,
		Size:   rec.S3.Object.Size,
	}, true, nil
}

// S3EventFromSQS decodes an S3 notification delivered through SQS. The
// s3:TestEvent S3 sends when notifications are configured has no records.
func S3EventFromSQS(msg events.SQSMessage) (events.S3Event, error) {
	var ev events.S3Event
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		return ev, fmt.Errorf("decoding S3 notification in message %s: %w", msg.MessageId, err)
	}
	return ev, nil
}

// UploadEventsFromSQS decodes an S3 notification delivered through SQS and
// extracts its uploads.
func UploadEventsFromSQS(msg events.SQSMessage) ([]types.UploadEvent, error) {
	ev, err := S3EventFromSQS(msg)
	if err != nil {
		return nil, err
	}
	return UploadEvents(ev)
}

// RequestBody returns the raw webhook body, decoding base64 when API Gateway
// encoded it.
func RequestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	body, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}
	return body, nil
}

// RequestHeaders merges single and multi-value API Gateway headers.
func RequestHeaders(req events.APIGatewayProxyRequest) http.Header {
	h := make(http.Header, len(req.Headers)+len(req.MultiValueHeaders))
	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

// JSONResponse builds an API Gateway proxy response with a JSON body.
func JSONResponse(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}
