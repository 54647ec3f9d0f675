// Package upstream is the HTTP client for the third-party identity and agent
// management API. Response shapes are normalized here and never leak past it.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// API holds the upstream base URL and route paths.
type API struct {
	BaseURL   string
	TokenPath string
	ListPath  string
	AddPath   string
	EditPath  string
}

// Credentials are the OAuth client credentials sent with password grants.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// Client talks to the upstream API.
type Client struct {
	API         API
	Credentials Credentials
	HTTPClient  *http.Client
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(api API, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		API:         api,
		Credentials: creds,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// AgentForm carries the agent fields in the upstream's vocabulary.
type AgentForm struct {
	Prompt       string // agent name
	FirstMessage string
	Description  string
}

func (f AgentForm) values() url.Values {
	values := url.Values{}
	values.Set("prompt", f.Prompt)
	values.Set("first_message", f.FirstMessage)
	values.Set("descp", f.Description)
	return values
}

// IssueToken exchanges a username and password for an access token.
func (c *Client) IssueToken(ctx context.Context, username, password string) (TokenResult, error) {
	values := url.Values{}
	values.Set("grant_type", "password")
	values.Set("username", username)
	values.Set("password", password)
	values.Set("client_id", c.Credentials.ClientID)
	values.Set("client_secret", c.Credentials.ClientSecret)
	values.Set("scope", c.Credentials.Scope)

	body, err := c.postForm(ctx, c.API.TokenPath, "", values)
	if err != nil {
		return TokenResult{}, fmt.Errorf("issue token: %w", err)
	}
	token, err := parseTokenResponse(body)
	if err != nil {
		return TokenResult{}, fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ListAgents fetches the upstream agent directory.
func (c *Client) ListAgents(ctx context.Context, accessToken string) ([]json.RawMessage, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, c.API.ListPath)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create list agents request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	agents, err := parseAgentList(body)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// AddAgent creates an agent upstream.
func (c *Client) AddAgent(ctx context.Context, accessToken string, form AgentForm) (*WriteResult, error) {
	body, err := c.postForm(ctx, c.API.AddPath, accessToken, form.values())
	if err != nil {
		return nil, fmt.Errorf("add agent: %w", err)
	}
	result, err := parseWriteResponse(body)
	if err != nil {
		return nil, fmt.Errorf("add agent: %w", err)
	}
	return result, nil
}

// EditAgent updates the upstream agent identified by agentID.
func (c *Client) EditAgent(ctx context.Context, accessToken, agentID string, form AgentForm) (*WriteResult, error) {
	values := form.values()
	values.Set("agent_id", agentID)

	body, err := c.postForm(ctx, c.API.EditPath, accessToken, values)
	if err != nil {
		return nil, fmt.Errorf("edit agent: %w", err)
	}
	result, err := parseWriteResponse(body)
	if err != nil {
		return nil, fmt.Errorf("edit agent: %w", err)
	}
	if result.ExternalID == "" {
		result.ExternalID = agentID
	}
	return result, nil
}

func (c *Client) postForm(ctx context.Context, path, accessToken string, values url.Values) ([]byte, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(req)
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: bodyErrorText(body)}
	}
	return body, nil
}

func bodyErrorText(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	return errorText(fields, "")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
