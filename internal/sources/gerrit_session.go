package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"github.com/stacklok/repocache/internal/httpclient"
	"github.com/stacklok/repocache/internal/telemetry"
)

const (
	// UnauthorizedMarker is the list response body that starts the login handshake
	UnauthorizedMarker = "Unauthorized"

	// SessionCookieName is the review service session cookie relayed to the browser
	SessionCookieName = "GerritAccount"

	// IdentityHeader carries the impersonated user to the review service
	IdentityHeader = "REMOTE_USER"

	// redirectReferer marks redirects issued after a successful login
	redirectReferer = "cgit-redirect"

	// hiddenState is the project state excluded from discovery
	hiddenState = "HIDDEN"
)

// Outcome is the result class of one session attempt
type Outcome string

const (
	// OutcomeAuthorized means the project list was returned
	OutcomeAuthorized Outcome = "authorized"

	// OutcomeUnauthorized means a login handshake ran and a redirect must be sent
	OutcomeUnauthorized Outcome = "unauthorized"

	// OutcomeTransportError means the list could not be obtained
	OutcomeTransportError Outcome = "transport_error"

	// OutcomeIdentityMissing means no request was made
	OutcomeIdentityMissing Outcome = "identity_missing"
)

// TransportError reports a failed or unusable response from the review service
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("review service request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Project is one entry of the review service project list
type Project struct {
	ID          string
	Description string
	State       string
}

// Redirect is the response sent instead of a page when the caller has to
// (re)authenticate
type Redirect struct {
	// Location is the return URL after a successful login, the index URL otherwise
	Location string

	// Cookies are Set-Cookie header values relayed verbatim
	Cookies []string

	// Authenticated is true when at least one session cookie was relayed
	Authenticated bool
}

// Write sends the redirect. Nothing else must be written to w afterwards.
func (r *Redirect) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/html;charset=utf-8")
	h.Set("Content-Length", "0")
	for _, c := range r.Cookies {
		h.Add("Set-Cookie", c)
	}
	if r.Authenticated {
		h.Set("Referer", redirectReferer)
	}
	h.Set("Location", r.Location)
	w.WriteHeader(http.StatusFound)
}

// FetchRequest is the input of one session attempt
type FetchRequest struct {
	ListURL   string
	LoginURL  string
	ReturnURL string
	IndexURL  string

	// Identity is the impersonated user, resolved by the caller
	Identity string

	// Cookie is the caller's raw Cookie header
	Cookie string
}

// FetchResult carries either the projects or the redirect to send
type FetchResult struct {
	Outcome  Outcome
	Projects []Project
	Redirect *Redirect
}

//go:generate mockgen -destination=mocks/mock_session_client.go -package=mocks -source=gerrit_session.go SessionClient

// SessionClient talks to the review service on behalf of a caller
type SessionClient interface {
	// FetchProjectList returns the caller's projects, or a redirect when the
	// caller has to log in first
	FetchProjectList(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// defaultSessionClient implements SessionClient over httpclient.Client
type defaultSessionClient struct {
	client  httpclient.Client
	metrics *telemetry.RemoteMetrics
}

// SessionOption configures the session client
type SessionOption func(*defaultSessionClient)

// WithSessionMetrics records session outcomes
func WithSessionMetrics(m *telemetry.RemoteMetrics) SessionOption {
	return func(c *defaultSessionClient) {
		c.metrics = m
	}
}

// NewSessionClient creates a session client
func NewSessionClient(client httpclient.Client, opts ...SessionOption) SessionClient {
	if client == nil {
		client = httpclient.NewDefaultClient()
	}
	c := &defaultSessionClient{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchProjectList implements SessionClient
func (c *defaultSessionClient) FetchProjectList(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if req.Identity == "" {
		c.metrics.RecordOutcome(ctx, string(OutcomeIdentityMissing))
		return nil, ErrIdentityMissing
	}

	result, err := c.fetch(ctx, req)
	if err != nil {
		c.metrics.RecordOutcome(ctx, string(OutcomeTransportError))
		return nil, err
	}
	c.metrics.RecordOutcome(ctx, string(result.Outcome))
	return result, nil
}

func (c *defaultSessionClient) fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	logger := logr.FromContextOrDiscard(ctx)

	resp, err := c.client.Get(ctx, req.ListURL,
		httpclient.WithHeader(IdentityHeader, req.Identity),
		httpclient.WithCookieHeader(req.Cookie))
	if err != nil {
		return nil, &TransportError{URL: req.ListURL, Err: err}
	}

	if string(resp.Body) == UnauthorizedMarker {
		logger.V(1).Info("Review service requires login", "user", req.Identity)
		return &FetchResult{
			Outcome:  OutcomeUnauthorized,
			Redirect: c.login(ctx, req),
		}, nil
	}

	if err := httpclient.CheckStatus(req.ListURL, resp); err != nil {
		return nil, &TransportError{URL: req.ListURL, Err: err}
	}

	projects, err := parseProjectList(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: req.ListURL, Err: err}
	}
	return &FetchResult{Outcome: OutcomeAuthorized, Projects: projects}, nil
}

// login runs the handshake and decides where to send the browser. It never
// fails: any problem resolves to the index redirect.
func (c *defaultSessionClient) login(ctx context.Context, req FetchRequest) *Redirect {
	logger := logr.FromContextOrDiscard(ctx)
	fallback := &Redirect{Location: req.IndexURL}

	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.Error(err, "Failed to create cookie jar")
		return fallback
	}

	resp, err := c.client.Get(ctx, req.LoginURL,
		httpclient.WithHeader(IdentityHeader, req.Identity),
		httpclient.WithCookieHeader(req.Cookie),
		httpclient.WithCookieJar(jar))
	if err != nil {
		logger.Error(&TransportError{URL: req.LoginURL, Err: err}, "Login request failed")
		return fallback
	}

	cookies := sessionCookies(resp.Header)
	if len(cookies) == 0 {
		logger.Info("Login returned no session cookie", "user", req.Identity, "status", resp.StatusCode)
		return fallback
	}

	return &Redirect{
		Location:      req.ReturnURL,
		Cookies:       cookies,
		Authenticated: true,
	}
}

// sessionCookies returns the raw Set-Cookie values naming the session cookie
func sessionCookies(h http.Header) []string {
	var relayed []string
	for _, line := range h.Values("Set-Cookie") {
		cookie, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if cookie.Name == SessionCookieName {
			relayed = append(relayed, line)
		}
	}
	return relayed
}

// parseProjectList parses the JSON object starting at the first '{'. The
// service prefixes its JSON with a guard line that is skipped this way.
func parseProjectList(body []byte) ([]Project, error) {
	start := bytes.IndexByte(body, '{')
	if start < 0 {
		return nil, errors.New("no JSON object in project list response")
	}
	data := body[start:]
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON in project list response")
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, errors.New("project list response is not a JSON object")
	}

	var projects []Project
	parsed.ForEach(func(key, value gjson.Result) bool {
		projects = append(projects, Project{
			ID:          key.String(),
			Description: value.Get("description").String(),
			State:       value.Get("state").String(),
		})
		return true
	})
	return projects, nil
}

// visible reports whether the project should be registered
func (p Project) visible() bool {
	return p.ID != "" && p.State != hiddenState
}
