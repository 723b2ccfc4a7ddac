package envelope

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dwsmith1983/contractsync/internal/failure"
)

const (
	jwtGrantType   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	jwtScopes      = "signature impersonation"
	assertionTTL   = time.Hour
	tokenRefreshIn = 5 * time.Minute
)

// session is an access token bound to the account it was resolved for.
type session struct {
	token     string
	expiresAt time.Time
	accountID string
	baseURI   string
}

// tokenSource performs the JWT grant and caches the resulting session.
type tokenSource struct {
	authBase   string // scheme://host of the authorization server
	audience   string // host of the authorization server
	clientID   string
	userID     string
	accountID  string
	basePath   string
	key        *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	current *session
}

func newTokenSource(authServer, clientID, userID, accountID, basePath string, pemKey []byte, hc *http.Client) (*tokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parsing provider private key: %w", err)
	}

	base := authServer
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid authorization server %q", authServer)
	}

	return &tokenSource{
		authBase:   u.Scheme + "://" + u.Host,
		audience:   u.Host,
		clientID:   clientID,
		userID:     userID,
		accountID:  accountID,
		basePath:   strings.TrimRight(basePath, "/"),
		key:        key,
		httpClient: hc,
		now:        time.Now,
	}, nil
}

// Session returns a cached session or performs a fresh grant.
func (ts *tokenSource) Session(ctx context.Context) (*session, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.current != nil && ts.now().Before(ts.current.expiresAt.Add(-tokenRefreshIn)) {
		return ts.current, nil
	}

	token, ttl, err := ts.grant(ctx)
	if err != nil {
		return nil, err
	}
	accountID, baseURI, err := ts.resolveAccount(ctx, token)
	if err != nil {
		return nil, err
	}
	if ts.basePath != "" {
		baseURI = ts.basePath
	}

	ts.current = &session{
		token:     token,
		expiresAt: ts.now().Add(ttl),
		accountID: accountID,
		baseURI:   strings.TrimRight(baseURI, "/"),
	}
	return ts.current, nil
}

// Invalidate drops the cached session after the provider rejects its token.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.current = nil
	ts.mu.Unlock()
}

func (ts *tokenSource) grant(ctx context.Context) (string, time.Duration, error) {
	now := ts.now()
	claims := jwt.MapClaims{
		"iss":   ts.clientID,
		"sub":   ts.userID,
		"aud":   ts.audience,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"scope": jwtScopes,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.key)
	if err != nil {
		return "", 0, fmt.Errorf("%w: signing assertion: %v", failure.ErrAuthentication, err)
	}

	form := url.Values{"grant_type": {jwtGrantType}, "assertion": {assertion}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.authBase+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := do(ts.httpClient, req, &out); err != nil {
		return "", 0, fmt.Errorf("token grant: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: token grant returned no access token", failure.ErrAuthentication)
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

func (ts *tokenSource) resolveAccount(ctx context.Context, token string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.authBase+"/oauth/userinfo", nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var info struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
			IsDefault bool   `json:"is_default"`
			BaseURI   string `json:"base_uri"`
		} `json:"accounts"`
	}
	if err := do(ts.httpClient, req, &info); err != nil {
		return "", "", fmt.Errorf("user info: %w", err)
	}

	for _, a := range info.Accounts {
		if ts.accountID != "" && a.AccountID == ts.accountID {
			return a.AccountID, a.BaseURI, nil
		}
	}
	if ts.accountID != "" {
		return "", "", fmt.Errorf("%w: account %s not available to user", failure.ErrAuthentication, ts.accountID)
	}
	for _, a := range info.Accounts {
		if a.IsDefault {
			return a.AccountID, a.BaseURI, nil
		}
	}
	if len(info.Accounts) > 0 {
		return info.Accounts[0].AccountID, info.Accounts[0].BaseURI, nil
	}
	return "", "", fmt.Errorf("%w: user has no accounts", failure.ErrAuthentication)
}

// apiError is the provider's error body.
type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// do sends req and decodes a JSON response into out, classifying failures.
func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", failure.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var body apiError
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return classifyResponse(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", failure.ErrProviderUnavailable, err)
	}
	return nil
}

func classifyResponse(code int, body apiError) error {
	detail := body.ErrorCode
	if detail == "" {
		detail = body.Error
	}
	if body.Message != "" {
		detail += ": " + body.Message
	}

	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		body.Error == "consent_required", body.Error == "invalid_grant",
		body.ErrorCode == "USER_AUTHENTICATION_FAILED":
		return fmt.Errorf("%w: status %d %s", failure.ErrAuthentication, code, detail)
	case code == http.StatusTooManyRequests, body.ErrorCode == "HOURLY_APIINVOCATION_LIMIT_EXCEEDED":
		return fmt.Errorf("%w: status %d %s", failure.ErrRateLimited, code, detail)
	case code >= 500:
		return fmt.Errorf("%w: status %d %s", failure.ErrProviderUnavailable, code, detail)
	default:
		return fmt.Errorf("%w: status %d %s", failure.ErrProviderRejected, code, detail)
	}
}
