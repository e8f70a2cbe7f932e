package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/review-notifier/internal/source"
)

const platformName = "gitlab"

// Client is a thin HTTP client for the GitLab REST API v4. It handles
// PRIVATE-TOKEN authentication and JSON decoding. It never retries;
// callers decide what a failed call means for their cycle.
type Client struct {
	baseURL    string
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewClient creates a new GitLab HTTP client. The baseURL is the root URL
// of the GitLab instance (e.g., https://gitlab.corp.example.com). A zero
// timeout falls back to 30s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		apiURL:  baseURL + "/api/v4",
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs an HTTP GET request against the API and unmarshals the
// JSON response into result.
func (c *Client) Get(
	ctx context.Context,
	path string,
	query url.Values,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, query, result)
}

// do builds the request, maps auth and API failures to typed errors and
// decodes the JSON body.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	result interface{},
) error {
	u := c.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &source.AuthError{
			Platform: platformName,
			Message: fmt.Sprintf(
				"authentication failed (401): check your "+
					"access token for %s", c.baseURL,
			),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &source.APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(respBody),
		}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}

// errorMessage extracts a readable message from a GitLab error body. The
// message field is a string for most errors and an object for validation
// failures.
func errorMessage(body []byte) string {
	var e ErrorResponse
	if json.Unmarshal(body, &e) == nil {
		if len(e.Message) > 0 {
			var s string
			if json.Unmarshal(e.Message, &s) == nil {
				return s
			}
			return string(e.Message)
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// projectPath returns the API path segment for a numeric id or a full
// project path such as "group/app".
func projectPath(project string) string {
	return "/projects/" + url.PathEscape(project)
}
