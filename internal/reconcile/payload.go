package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Event is a provider status change normalized from any supported payload shape.
type Event struct {
	EventName  string
	EnvelopeID string
	// Status is the provider's raw envelope status, lower-cased. Empty when
	// the payload only carried an event name.
	Status     string
	Signers    []types.Signer
	OccurredAt time.Time
}

// Terminal returns the contract status the event implies. The envelope
// status wins over the event name; ok is false for non-terminal events.
func (e Event) Terminal() (types.ContractStatus, bool) {
	if e.Status != "" {
		return lifecycle.ProviderStatus(e.Status)
	}
	name, found := strings.CutPrefix(e.EventName, "envelope-")
	if !found {
		return "", false
	}
	return lifecycle.ProviderStatus(name)
}

// Connect payloads. Version 1 and 2.1 JSON put the envelope summary under
// data; older deliveries use eventData.
type connectPayload struct {
	Event             string       `json:"event"`
	GeneratedDateTime string       `json:"generatedDateTime"`
	Data              *connectData `json:"data"`
	EventData         *connectData `json:"eventData"`
}

type connectData struct {
	EnvelopeID            string           `json:"envelopeId"`
	Status                string           `json:"status"`
	StatusChangedDateTime string           `json:"statusChangedDateTime"`
	CompletedDateTime     string           `json:"completedDateTime"`
	Recipients            *recipients      `json:"recipients"`
	EnvelopeSummary       *envelopeSummary `json:"envelopeSummary"`
}

type envelopeSummary struct {
	EnvelopeID            string      `json:"envelopeId"`
	Status                string      `json:"status"`
	StatusChangedDateTime string      `json:"statusChangedDateTime"`
	CompletedDateTime     string      `json:"completedDateTime"`
	DeclinedDateTime      string      `json:"declinedDateTime"`
	VoidedDateTime        string      `json:"voidedDateTime"`
	Recipients            *recipients `json:"recipients"`
}

type recipients struct {
	Signers []recipient `json:"signers"`
}

type recipient struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	SignedDateTime   string `json:"signedDateTime"`
	DeclinedDateTime string `json:"declinedDateTime"`
}

// ParseEvent decodes a Connect webhook body. It accepts the flat
// data.envelopeId + data.status shape, the nested data.envelopeSummary shape
// and the legacy eventData.envelopeSummary shape. Anything else fails with
// failure.ErrUnrecognizedPayload.
func ParseEvent(body []byte) (Event, error) {
	var p connectPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %w", failure.ErrUnrecognizedPayload, err)
	}

	var summary *envelopeSummary
	switch {
	case p.Data != nil && p.Data.EnvelopeSummary != nil:
		summary = p.Data.EnvelopeSummary
	case p.EventData != nil && p.EventData.EnvelopeSummary != nil && (p.Data == nil || p.Data.Status == ""):
		summary = p.EventData.EnvelopeSummary
	}

	ev := Event{EventName: strings.ToLower(strings.TrimSpace(p.Event))}
	var stamps []string
	if summary != nil {
		ev.EnvelopeID = summary.EnvelopeID
		ev.Status = summary.Status
		ev.Signers = signers(summary.Recipients)
		stamps = append(stamps, summary.CompletedDateTime, summary.DeclinedDateTime, summary.VoidedDateTime, summary.StatusChangedDateTime)
	}
	if d := p.Data; d != nil {
		ev.EnvelopeID = firstNonEmpty(ev.EnvelopeID, d.EnvelopeID)
		ev.Status = firstNonEmpty(ev.Status, d.Status)
		if len(ev.Signers) == 0 {
			ev.Signers = signers(d.Recipients)
		}
		stamps = append(stamps, d.CompletedDateTime, d.StatusChangedDateTime)
	}
	if d := p.EventData; d != nil {
		ev.EnvelopeID = firstNonEmpty(ev.EnvelopeID, d.EnvelopeID)
	}
	ev.Status = strings.ToLower(strings.TrimSpace(ev.Status))

	if ev.EnvelopeID == "" {
		return Event{}, fmt.Errorf("%w: no envelope id", failure.ErrUnrecognizedPayload)
	}
	if ev.Status == "" && ev.EventName == "" {
		return Event{}, fmt.Errorf("%w: envelope %s has neither status nor event name", failure.ErrUnrecognizedPayload, ev.EnvelopeID)
	}

	if status, ok := ev.Terminal(); ok {
		stamps = append(stamps, signerStamps(recipientsOf(summary, p.Data), status)...)
	}
	stamps = append(stamps, p.GeneratedDateTime)
	ev.OccurredAt = firstTime(stamps)
	return ev, nil
}

func recipientsOf(s *envelopeSummary, d *connectData) *recipients {
	if s != nil && s.Recipients != nil {
		return s.Recipients
	}
	if d != nil {
		return d.Recipients
	}
	return nil
}

// signerStamps returns the recipient-level timestamps that mark status, used
// when the envelope-level completion time is absent.
func signerStamps(r *recipients, status types.ContractStatus) []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, s := range r.Signers {
		switch status {
		case types.ContractSigned:
			out = append(out, s.SignedDateTime)
		case types.ContractDeclined:
			out = append(out, s.DeclinedDateTime)
		}
	}
	return out
}

func signers(r *recipients) []types.Signer {
	if r == nil {
		return nil
	}
	out := make([]types.Signer, 0, len(r.Signers))
	for _, s := range r.Signers {
		if s.Email == "" {
			continue
		}
		out = append(out, types.Signer{Name: s.Name, Email: strings.ToLower(strings.TrimSpace(s.Email))})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstTime parses the first valid RFC 3339 timestamp. Connect sends seven
// fractional digits, which time.Parse accepts.
func firstTime(vals []string) time.Time {
	for _, v := range vals {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
