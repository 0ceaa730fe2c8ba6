package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ferg-cod3s/docuforge/internal/observability"
)

// serviceClaims identifies this process to the receiving status endpoint,
// mirroring the bearer token the reference reporter forwards from the
// originating request.
type serviceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// HTTPSink posts progress updates to an external status endpoint. Every
// push is signed with a short-lived service JWT and carries a bounded
// timeout; failures are logged at debug level and otherwise swallowed, per
// the reporter's "status updates are optional" contract.
type HTTPSink struct {
	url        string
	jwtSecret  []byte
	httpClient *http.Client
	log        *observability.Logger
}

// NewHTTPSink constructs an HTTPSink posting to url, signing bearer tokens
// with jwtSecret.
func NewHTTPSink(url string, jwtSecret []byte, log *observability.Logger) *HTTPSink {
	return &HTTPSink{
		url:        url,
		jwtSecret:  jwtSecret,
		httpClient: &http.Client{Timeout: reportTimeout},
		log:        log,
	}
}

// Report posts update as JSON with a bearer-token Authorization header.
// Any failure — token signing, network, non-200 status — is logged and
// discarded; it never propagates to the caller.
func (s *HTTPSink) Report(ctx context.Context, update Update) {
	body, err := json.Marshal(update)
	if err != nil {
		s.logFailure("marshal update", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logFailure("build request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	if token, err := s.signToken(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logFailure("post status update", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logFailure("status update rejected", nil)
	}
}

func (s *HTTPSink) signToken() (string, error) {
	now := time.Now()
	claims := serviceClaims{
		Service: "docuforge-orchestrator",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(reportTimeout)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *HTTPSink) logFailure(msg string, err error) {
	if s.log == nil {
		return
	}
	if err != nil {
		s.log.Debug(msg, "error", err)
	} else {
		s.log.Debug(msg)
	}
}
