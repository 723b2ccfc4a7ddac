package envelope

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Provider request defaults.
const (
	defaultTimeout      = 30 * time.Second
	defaultReturnURL    = "https://www.docusign.com"
	defaultEmailSubject = "Por favor, assine este contrato"
)

// signHereAnchors are the text markers generated contracts carry where the
// signer signs. Missing anchors are ignored by the provider.
var signHereAnchors = []string{"/sn1/", "**assinatura**", "**signature**", "/assinatura/"}

// Compile-time interface satisfaction check.
var _ Gateway = (*DocuSign)(nil)

// DocuSign is a Gateway backed by the DocuSign eSignature REST API v2.1.
type DocuSign struct {
	tokens       *tokenSource
	docs         DocumentSource
	httpClient   *http.Client
	returnURL    string
	emailSubject string
	logger       *slog.Logger
}

// Option configures a DocuSign gateway.
type Option func(*DocuSign)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(d *DocuSign) { d.httpClient = c }
}

// WithLogger overrides the gateway's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *DocuSign) { d.logger = l }
}

// NewDocuSign creates a DocuSign gateway. privateKey is the PEM encoded RSA
// key registered for the integration's JWT grant.
func NewDocuSign(cfg *types.DocuSignConfig, privateKey []byte, docs DocumentSource, opts ...Option) (*DocuSign, error) {
	if cfg.ClientID == "" || cfg.UserID == "" {
		return nil, fmt.Errorf("docusign client ID and user ID required")
	}
	d := &DocuSign{
		docs:         docs,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		returnURL:    cfg.ReturnURL,
		emailSubject: cfg.EmailSubject,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.returnURL == "" {
		d.returnURL = defaultReturnURL
	}
	if d.emailSubject == "" {
		d.emailSubject = defaultEmailSubject
	}

	authServer := cfg.AuthServer
	if authServer == "" {
		authServer = "account-d.docusign.com"
	}
	ts, err := newTokenSource(authServer, cfg.ClientID, cfg.UserID, cfg.AccountID, cfg.BasePath, privateKey, d.httpClient)
	if err != nil {
		return nil, err
	}
	d.tokens = ts
	return d, nil
}

type signHereTab struct {
	AnchorString             string `json:"anchorString"`
	AnchorUnits              string `json:"anchorUnits"`
	AnchorXOffset            string `json:"anchorXOffset"`
	AnchorYOffset            string `json:"anchorYOffset"`
	AnchorIgnoreIfNotPresent string `json:"anchorIgnoreIfNotPresent"`
}

type envelopeSigner struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
	ClientUserID string `json:"clientUserId"`
	Tabs         struct {
		SignHereTabs []signHereTab `json:"signHereTabs"`
	} `json:"tabs"`
}

type envelopeDocument struct {
	DocumentBase64 string `json:"documentBase64"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension"`
	DocumentID     string `json:"documentId"`
}

type envelopeDefinition struct {
	EmailSubject string             `json:"emailSubject"`
	Documents    []envelopeDocument `json:"documents"`
	Recipients   struct {
		Signers []envelopeSigner `json:"signers"`
	} `json:"recipients"`
	Status string `json:"status"`
}

// CreateEnvelope uploads the document, sends the envelope and returns an
// embedded signing URL for the signer.
func (d *DocuSign) CreateEnvelope(ctx context.Context, req Request) (Envelope, error) {
	doc, err := d.docs.Fetch(ctx, req.Document)
	if err != nil {
		return Envelope{}, fmt.Errorf("fetching document %s: %w", req.Document.Key, err)
	}

	def := envelopeDefinition{EmailSubject: d.emailSubject, Status: "sent"}
	def.Documents = []envelopeDocument{{
		DocumentBase64: base64.StdEncoding.EncodeToString(doc),
		Name:           path.Base(req.Document.Key),
		FileExtension:  "pdf",
		DocumentID:     "1",
	}}
	signer := envelopeSigner{
		Email:        req.Email,
		Name:         req.Name,
		RecipientID:  "1",
		RoutingOrder: "1",
		ClientUserID: req.Email,
	}
	for _, a := range signHereAnchors {
		signer.Tabs.SignHereTabs = append(signer.Tabs.SignHereTabs, signHereTab{
			AnchorString:             a,
			AnchorUnits:              "pixels",
			AnchorXOffset:            "20",
			AnchorYOffset:            "10",
			AnchorIgnoreIfNotPresent: "true",
		})
	}
	def.Recipients.Signers = []envelopeSigner{signer}

	var created struct {
		EnvelopeID string `json:"envelopeId"`
		Status     string `json:"status"`
	}
	if err := d.call(ctx, http.MethodPost, "/envelopes", def, &created); err != nil {
		return Envelope{}, fmt.Errorf("creating envelope: %w", err)
	}
	if created.EnvelopeID == "" {
		return Envelope{}, fmt.Errorf("%w: create returned no envelope id", failure.ErrProviderUnavailable)
	}

	view := map[string]string{
		"returnUrl":            d.returnURL,
		"authenticationMethod": "email",
		"email":                req.Email,
		"userName":             req.Name,
		"clientUserId":         req.Email,
	}
	var viewResp struct {
		URL string `json:"url"`
	}
	if err := d.call(ctx, http.MethodPost, "/envelopes/"+url.PathEscape(created.EnvelopeID)+"/views/recipient", view, &viewResp); err != nil {
		return Envelope{}, fmt.Errorf("creating recipient view for %s: %w", created.EnvelopeID, err)
	}

	d.logger.Info("envelope created", "envelopeId", created.EnvelopeID, "email", req.Email)
	return Envelope{EnvelopeID: created.EnvelopeID, SigningURL: viewResp.URL}, nil
}

// EnvelopeStatus fetches the envelope's current status and signers.
func (d *DocuSign) EnvelopeStatus(ctx context.Context, envelopeID string) (StatusReport, error) {
	var out struct {
		EnvelopeID            string `json:"envelopeId"`
		Status                string `json:"status"`
		StatusChangedDateTime string `json:"statusChangedDateTime"`
		CompletedDateTime     string `json:"completedDateTime"`
		DeclinedDateTime      string `json:"declinedDateTime"`
		VoidedDateTime        string `json:"voidedDateTime"`
		Recipients            struct {
			Signers []struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"signers"`
		} `json:"recipients"`
	}
	if err := d.call(ctx, http.MethodGet, "/envelopes/"+url.PathEscape(envelopeID)+"?include=recipients", nil, &out); err != nil {
		return StatusReport{}, fmt.Errorf("envelope status %s: %w", envelopeID, err)
	}

	report := StatusReport{EnvelopeID: out.EnvelopeID, Status: out.Status}
	for _, ts := range []string{out.CompletedDateTime, out.DeclinedDateTime, out.VoidedDateTime, out.StatusChangedDateTime} {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			report.ChangedAt = t
			break
		}
	}
	for _, s := range out.Recipients.Signers {
		report.Signers = append(report.Signers, types.Signer{Name: s.Name, Email: s.Email})
	}
	return report, nil
}

// call issues an account-scoped REST call, retrying once with a fresh token
// when the cached one is rejected.
func (d *DocuSign) call(ctx context.Context, method, resource string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		sess, err := d.tokens.Session(ctx)
		if err != nil {
			return err
		}

		endpoint := sess.baseURI + "/restapi/v2.1/accounts/" + url.PathEscape(sess.accountID) + resource
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+sess.token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		err = do(d.httpClient, req, out)
		if err != nil && attempt == 0 && errors.Is(err, failure.ErrAuthentication) {
			d.tokens.Invalidate()
			continue
		}
		return err
	}
}
