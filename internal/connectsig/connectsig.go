// Package connectsig verifies DocuSign Connect HMAC signatures.
//
// Connect signs the raw request body with HMAC-SHA256 for each configured key
// and sends the base64 digests in X-DocuSign-Signature-1, -2, and so on.
package connectsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dwsmith1983/contractsync/internal/failure"
)

// HeaderPrefix is the signature header name without its index.
const HeaderPrefix = "X-DocuSign-Signature-"

// maxHeaders bounds the header indexes checked; Connect supports up to 100 keys.
const maxHeaders = 100

// Verifier checks request signatures against one or more secrets. A Verifier
// with no secrets accepts every request.
type Verifier struct {
	secrets [][]byte
}

// New creates a verifier. Blank secrets are skipped.
func New(secrets ...string) *Verifier {
	v := &Verifier{}
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			v.secrets = append(v.secrets, []byte(s))
		}
	}
	return v
}

// Enabled reports whether any secret is configured.
func (v *Verifier) Enabled() bool { return v != nil && len(v.secrets) > 0 }

// Sign returns the base64 HMAC-SHA256 digest of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify accepts body when any signature header matches any secret. Failures
// wrap failure.ErrInvalidSignature.
func (v *Verifier) Verify(headers http.Header, body []byte) error {
	if !v.Enabled() {
		return nil
	}
	sigs := Signatures(headers)
	if len(sigs) == 0 {
		return fmt.Errorf("%w: no %s* header", failure.ErrInvalidSignature, HeaderPrefix)
	}
	for _, secret := range v.secrets {
		mac := hmac.New(sha256.New, secret)
		_, _ = mac.Write(body)
		expected := mac.Sum(nil)
		for _, sig := range sigs {
			if hmac.Equal(expected, sig) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no signature matched", failure.ErrInvalidSignature)
}

// Signatures returns the decodable signature headers in index order.
func Signatures(headers http.Header) [][]byte {
	var out [][]byte
	for i := 1; i <= maxHeaders; i++ {
		raw := strings.TrimSpace(headers.Get(HeaderPrefix + strconv.Itoa(i)))
		if raw == "" {
			break
		}
		sig, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// HeadersFromMap converts API Gateway proxy headers to http.Header.
func HeadersFromMap(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
