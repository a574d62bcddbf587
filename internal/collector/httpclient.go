package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/gather/internal/config"
)

// DefaultHTTPTimeout bounds every upstream request.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 512

// NewHTTPClient returns the client shared by all collectors.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// rateLimitedTransport waits on a token bucket before each request.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// RateLimited returns a copy of client whose requests are throttled to rps
// with the given burst. rps <= 0 returns the client unchanged.
func RateLimited(client *http.Client, rps float64, burst int) *http.Client {
	if rps <= 0 {
		return client
	}
	if burst <= 0 {
		burst = max(1, int(rps))
	}

	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	limited := *client
	limited.Transport = &rateLimitedTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
	return &limited
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// doJSON executes req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: req.URL.Path, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// getJSON issues an authenticated GET.
func getJSON(ctx context.Context, client *http.Client, url, auth string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return doJSON(client, req, out)
}

// token reads the API token for a source from the configured environment
// variable, falling back to defaultEnv.
func token(sc config.SourceConfig, defaultEnv string) (string, error) {
	env := sc.TokenEnv
	if env == "" {
		env = defaultEnv
	}
	tok := os.Getenv(env)
	if tok == "" {
		return "", fmt.Errorf("missing API token: set %s", env)
	}
	return tok, nil
}
