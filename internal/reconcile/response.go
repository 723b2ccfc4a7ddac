package reconcile

import (
	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Response is the JSON body returned to the webhook caller.
type Response struct {
	Outcome    types.Outcome        `json:"outcome,omitempty"`
	EnvelopeID string               `json:"envelopeId,omitempty"`
	Email      string               `json:"email,omitempty"`
	Status     types.ContractStatus `json:"status,omitempty"`
	Error      string               `json:"error,omitempty"`
	Code       string               `json:"code,omitempty"`
}

// Reply maps a Handle result to an HTTP status and response body. Store and
// gateway faults are reported by code only.
func Reply(res Result, err error) (int, Response) {
	body := Response{
		Outcome:    res.Outcome,
		EnvelopeID: res.EnvelopeID,
		Email:      res.Email,
		Status:     res.Status,
	}
	if err == nil {
		return failure.HTTPStatus(nil), body
	}
	body.Outcome = ""
	body.Code = failure.Code(err)
	status := failure.HTTPStatus(err)
	if status >= 500 {
		body.Error = "internal error"
	} else {
		body.Error = err.Error()
	}
	return status, body
}
