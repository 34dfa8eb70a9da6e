package connector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// maxBodyBytes bounds a single response body read.
var maxBodyBytes int64 = 64 << 20

// maxPages bounds paginated fetches so a misbehaving API cannot loop forever.
const maxPages = 50

// Auth describes how requests to a source are authenticated.
type Auth struct {
	// Header and HeaderValue send a token in a custom header
	// (e.g. PRIVATE-TOKEN for GitLab).
	Header      string
	HeaderValue string

	// Bearer sends "Authorization: Bearer <token>".
	Bearer string

	// Username and Password send HTTP basic auth.
	Username string
	Password string
}

// Authenticator is implemented by connectors whose source uses an auth scheme
// other than basic auth from the username/password parameters.
type Authenticator interface {
	Auth(p *Params) Auth
}

// AuthFor returns the auth settings for a source of connector c.
func AuthFor(c Connector, p *Params) Auth {
	if a, ok := c.(Authenticator); ok {
		return a.Auth(p)
	}
	return Auth{Username: p.String("username"), Password: p.String("password")}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	a := t.auth
	switch {
	case a.Header != "" && a.HeaderValue != "":
		req = req.Clone(req.Context())
		req.Header.Set(a.Header, a.HeaderValue)
	case a.Bearer != "":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+a.Bearer)
	case a.Username != "" || a.Password != "":
		req = req.Clone(req.Context())
		req.SetBasicAuth(a.Username, a.Password)
	}
	return t.base.RoundTrip(req)
}

// NewTransport returns the transport shared by all source clients.
func NewTransport(insecureSkipVerify bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // user-configured
	}
	t.MaxIdleConnsPerHost = 16
	return t
}

// NewHTTPClient builds a client for one source on top of the shared transport.
// timeout is a backstop; callers also bound each fetch with a context deadline.
func NewHTTPClient(base http.RoundTripper, auth Auth, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: auth},
		Timeout:   timeout,
	}
}

// get performs an HTTP GET and reads the whole body. Non-2xx statuses are
// returned as errors.
func get(ctx context.Context, src *Source, url, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	client := src.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, fmt.Errorf("GET %s: response body exceeds %d bytes", url, maxBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return &Response{URL: url, StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// getLinked GETs url and follows RFC 5988 rel="next" links until there are
// none left.
func getLinked(ctx context.Context, src *Source, url, accept string) ([]*Response, error) {
	var out []*Response
	for page := 0; url != "" && page < maxPages; page++ {
		resp, err := get(ctx, src, url, accept)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
		url = nextLink(resp.Header)
	}
	return out, nil
}

var linkNextRE = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="?next"?`)

// nextLink extracts the rel="next" target from a Link header, or "".
func nextLink(h http.Header) string {
	for _, v := range h.Values("Link") {
		if m := linkNextRE.FindStringSubmatch(v); m != nil {
			return m[1]
		}
	}
	return ""
}

// decodeJSON unmarshals a response body into v.
func decodeJSON(resp *Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", resp.URL, err)
	}
	return nil
}

// intStr formats an integer count as a value string.
func intStr(n int) *string {
	s := strconv.Itoa(n)
	return &s
}
