package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds every request made to a PCA host when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const (
	loginEndpoint     = "/api/v1/auth/login"
	aggregateEndpoint = "/api/v3/metrics/aggregate"

	jsonAPIContentType = "application/vnd.api+json"
	bearerPrefix       = "Bearer "
)

var (
	// ErrAuthentication is returned for every login failure.
	ErrAuthentication = errors.New("authentication failed")
	// ErrFetch is returned when an aggregate request does not succeed.
	ErrFetch = errors.New("metrics fetch failed")
	// ErrUnknownObjectType is returned by a Registry lookup miss.
	ErrUnknownObjectType = errors.New("unknown object type")
)

// Client represents a HTTP connection to a PCA host.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         Token
	scopeToObject bool
}

// Option configures a Client.
type Option func(*Client)

// WithObjectScope controls whether aggregate requests carry a
// globalMetricFilterContext restricting the query to the requested object.
func WithObjectScope(enabled bool) Option {
	return func(c *Client) {
		c.scopeToObject = enabled
	}
}

// NewHTTPClient creates the http.Client used for both login and metric requests.
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: insecureSkipVerify,
			},
		},
	}
}

// CreateClient creates a Client object given a baseURL, token, and httpClient.
func CreateClient(baseURL string, token Token, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout, false)
	}

	client := &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         token,
		scopeToObject: true,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StatusError carries the status and body of an unexpected response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status code: %v: %v", e.Status, e.Body)
}

func (client *Client) makeJSONRequest(ctx context.Context, url string, method string, requestBody interface{}, responseBody interface{}) (err error) {
	var body []byte

	if requestBody != nil {
		body, err = json.Marshal(requestBody)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return
	}

	req.Header.Set("Authorization", bearerPrefix+string(client.token))
	req.Header.Set("Content-Type", jsonAPIContentType)
	req.Header.Set("Accept", jsonAPIContentType)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return
	}

	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	return json.Unmarshal(raw, responseBody)
}
