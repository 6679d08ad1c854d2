package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foundercrm/commitment-engine/internal/config"
	"github.com/foundercrm/commitment-engine/internal/pkg/httpretry"
)

// Client talks to the mail aggregator's REST API. All calls retry transient
// failures through httpretry.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient builds an aggregator client from config. doer may be nil, in
// which case a retrying client with the configured timeout is used.
func NewClient(cfg config.AggregatorConfig, doer httpretry.HTTPDoer) *Client {
	if doer == nil {
		timeout := cfg.Timeout()
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		doer = httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    doer,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: aggregator returned %d: %s", method, path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

// ListConnections returns the user's connected accounts.
func (c *Client) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	var out struct {
		Items []Connection `json:"items"`
	}
	path := "/v1/connections?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return out.Items, nil
}

// ActiveGmailConnection returns the user's ACTIVE Gmail connection, or nil
// when the user has none.
func (c *Client) ActiveGmailConnection(ctx context.Context, userID string) (*Connection, error) {
	conns, err := c.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if strings.EqualFold(conns[i].Toolkit, "gmail") && conns[i].Status == StatusActive {
			return &conns[i], nil
		}
	}
	return nil, nil
}

// ListTriggers returns the active trigger instances for the given slugs,
// optionally filtered to one connected account.
func (c *Client) ListTriggers(ctx context.Context, slugs []string, connectedAccountID string) ([]TriggerInstance, error) {
	q := url.Values{}
	q.Set("slugs", strings.Join(slugs, ","))
	if connectedAccountID != "" {
		q.Set("connected_account_id", connectedAccountID)
	}
	var out struct {
		Items []TriggerInstance `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/triggers?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("listing triggers: %w", err)
	}
	return out.Items, nil
}

// CreateTrigger provisions a trigger instance on the connected account.
func (c *Client) CreateTrigger(ctx context.Context, slug, connectedAccountID string, triggerConfig map[string]any) (*TriggerInstance, error) {
	if triggerConfig == nil {
		triggerConfig = map[string]any{}
	}
	body := map[string]any{
		"slug":                 slug,
		"connected_account_id": connectedAccountID,
		"trigger_config":       triggerConfig,
	}
	var out TriggerInstance
	if err := c.do(ctx, http.MethodPost, "/v1/triggers", body, &out); err != nil {
		return nil, fmt.Errorf("creating trigger %s: %w", slug, err)
	}
	return &out, nil
}

// DeleteTrigger removes a trigger instance.
func (c *Client) DeleteTrigger(ctx context.Context, instanceID string) error {
	path := "/v1/triggers/" + url.PathEscape(instanceID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting trigger %s: %w", instanceID, err)
	}
	return nil
}

// DeleteConnection removes a connected account.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	path := "/v1/connections/" + url.PathEscape(connectionID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting connection %s: %w", connectionID, err)
	}
	return nil
}

// SearchParams select a page of messages from the connected mailbox.
// Query is day-granular Gmail search syntax (after:/before:).
type SearchParams struct {
	ConnectionID string   `json:"connection_id"`
	Query        string   `json:"query,omitempty"`
	LabelIDs     []string `json:"label_ids,omitempty"`
	MaxResults   int      `json:"max_results,omitempty"`
	PageToken    string   `json:"page_token,omitempty"`
}

// SearchMessages returns one page of messages matching the params.
func (c *Client) SearchMessages(ctx context.Context, params SearchParams) (*SearchResult, error) {
	var out SearchResult
	if err := c.do(ctx, http.MethodPost, "/v1/gmail/messages/search", params, &out); err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return &out, nil
}

// GetMessage fetches one full message by provider id.
func (c *Client) GetMessage(ctx context.Context, connectionID, messageID string) (*Message, error) {
	path := fmt.Sprintf("/v1/gmail/messages/%s?connection_id=%s",
		url.PathEscape(messageID), url.QueryEscape(connectionID))
	var out Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return &out, nil
}
