// Package klaviyo implements the upstream reporting API client: campaign,
// flow, segment, list and metric reads plus the analytics report queries the
// sync pipeline persists.
package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/pkg/httpretry"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
)

// RateLimitError indicates upstream throttling persisted past the retry
// budget. Callers skip the affected unit of work rather than aborting the
// whole sync.
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("klaviyo: rate limit exceeded on %s", e.Endpoint)
}

// APIError is a non-retryable upstream failure (4xx other than 429, 5xx).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("klaviyo: API error (status %d): %s", e.Status, e.Body)
}

// Client is the Klaviyo API client for one account.
type Client struct {
	baseURL    string
	apiKey     string
	revision   string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a client for the given account API key.
func NewClient(cfg config.KlaviyoConfig, apiKey string) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   apiKey,
		revision: cfg.Revision,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request against the API.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Klaviyo-API-Key "+c.apiKey)
	req.Header.Set("revision", c.revision)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Debug("klaviyo: request",
		"method", method, "endpoint", endpoint,
		"status", resp.StatusCode, "bytes", len(respBody),
		"duration", time.Since(start).String())

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Endpoint: endpoint}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// ========== Campaigns ==========

// CampaignsPage fetches one page of email campaigns sorted newest first.
// Returns the page items and the cursor for the next page ("" when done).
func (c *Client) CampaignsPage(ctx context.Context, cursor string) ([]Campaign, string, error) {
	params := url.Values{}
	params.Set("filter", "equals(messages.channel,'email')")
	params.Set("sort", "-created_at")
	if cursor != "" {
		params.Set("page[cursor]", cursor)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, "/campaigns", params, nil)
	if err != nil {
		return nil, "", err
	}

	var response campaignListResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, "", fmt.Errorf("failed to parse campaigns response: %w", err)
	}

	campaigns := make([]Campaign, 0, len(response.Data))
	for _, r := range response.Data {
		campaigns = append(campaigns, r.flatten())
	}
	return campaigns, nextCursor(response.Links.Next), nil
}

// CampaignMessage fetches the first message of a campaign for its subject
// line and template image.
func (c *Client) CampaignMessage(ctx context.Context, campaignID string) (*CampaignMessage, error) {
	params := url.Values{}
	params.Set("include", "template")

	endpoint := fmt.Sprintf("/campaigns/%s/campaign-messages", campaignID)
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}

	var response campaignMessageResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse campaign messages response: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("campaign %s has no messages", campaignID)
	}

	msg := &CampaignMessage{
		ID:          response.Data[0].ID,
		Subject:     response.Data[0].Attributes.Content.Subject,
		PreviewText: response.Data[0].Attributes.Content.PreviewText,
	}
	for _, inc := range response.Included {
		if inc.Type == "template" && inc.Attributes.ImageURL != "" {
			msg.ImageURL = inc.Attributes.ImageURL
			break
		}
	}
	return msg, nil
}

// ========== Flows ==========

// FlowsPage fetches one page of flows.
func (c *Client) FlowsPage(ctx context.Context, cursor string) ([]Flow, string, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("page[cursor]", cursor)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, "/flows", params, nil)
	if err != nil {
		return nil, "", err
	}

	var response flowListResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, "", fmt.Errorf("failed to parse flows response: %w", err)
	}

	flows := make([]Flow, 0, len(response.Data))
	for _, r := range response.Data {
		flows = append(flows, Flow{
			ID:          r.ID,
			Name:        r.Attributes.Name,
			Status:      r.Attributes.Status,
			Archived:    r.Attributes.Archived,
			TriggerType: r.Attributes.TriggerType,
			CreatedAt:   r.Attributes.CreatedAt,
		})
	}
	return flows, nextCursor(response.Links.Next), nil
}

// ========== Segments / Lists / Profiles ==========

// Segments fetches all segments, following cursors until exhausted.
func (c *Client) Segments(ctx context.Context) ([]Segment, error) {
	var out []Segment
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("page[cursor]", cursor)
		}
		respBody, err := c.doRequest(ctx, http.MethodGet, "/segments", params, nil)
		if err != nil {
			return out, err
		}
		var response segmentListResponse
		if err := json.Unmarshal(respBody, &response); err != nil {
			return out, fmt.Errorf("failed to parse segments response: %w", err)
		}
		for _, r := range response.Data {
			out = append(out, Segment{ID: r.ID, Name: r.Attributes.Name})
		}
		cursor = nextCursor(response.Links.Next)
		if cursor == "" {
			return out, nil
		}
	}
}

// Lists fetches all lists.
func (c *Client) Lists(ctx context.Context) ([]List, error) {
	var out []List
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("page[cursor]", cursor)
		}
		respBody, err := c.doRequest(ctx, http.MethodGet, "/lists", params, nil)
		if err != nil {
			return out, err
		}
		var response listListResponse
		if err := json.Unmarshal(respBody, &response); err != nil {
			return out, fmt.Errorf("failed to parse lists response: %w", err)
		}
		for _, r := range response.Data {
			out = append(out, List{ID: r.ID, Name: r.Attributes.Name})
		}
		cursor = nextCursor(response.Links.Next)
		if cursor == "" {
			return out, nil
		}
	}
}

// ListProfilesPage fetches one page of a list's membership.
func (c *Client) ListProfilesPage(ctx context.Context, listID, cursor string) ([]Profile, string, error) {
	params := url.Values{}
	params.Set("page[size]", "100")
	params.Set("additional-fields[profile]", "subscriptions")
	if cursor != "" {
		params.Set("page[cursor]", cursor)
	}

	endpoint := fmt.Sprintf("/lists/%s/profiles", listID)
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, "", err
	}

	var response profileListResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, "", fmt.Errorf("failed to parse profiles response: %w", err)
	}

	profiles := make([]Profile, 0, len(response.Data))
	for _, r := range response.Data {
		profiles = append(profiles, Profile{
			ID:      r.ID,
			Email:   r.Attributes.Email,
			Consent: r.Attributes.Subscriptions.Email.Marketing.Consent,
		})
	}
	return profiles, nextCursor(response.Links.Next), nil
}

// ========== Metrics ==========

// ConversionMetricID resolves the id of the "Placed Order" metric used to
// attribute revenue and conversions.
func (c *Client) ConversionMetricID(ctx context.Context) (string, error) {
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("page[cursor]", cursor)
		}
		respBody, err := c.doRequest(ctx, http.MethodGet, "/metrics", params, nil)
		if err != nil {
			return "", err
		}
		var response metricListResponse
		if err := json.Unmarshal(respBody, &response); err != nil {
			return "", fmt.Errorf("failed to parse metrics response: %w", err)
		}
		for _, r := range response.Data {
			if r.Attributes.Name == "Placed Order" {
				return r.ID, nil
			}
		}
		cursor = nextCursor(response.Links.Next)
		if cursor == "" {
			return "", fmt.Errorf("conversion metric %q not found", "Placed Order")
		}
	}
}

// ========== Events ==========

// Events fetches the most recent events, used by the diagnostics harness to
// verify the account's event stream is readable.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	params := url.Values{}
	params.Set("sort", "-datetime")
	if limit > 0 {
		params.Set("page[size]", fmt.Sprintf("%d", limit))
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, "/events", params, nil)
	if err != nil {
		return nil, err
	}

	var response eventListResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse events response: %w", err)
	}

	events := make([]Event, 0, len(response.Data))
	for _, r := range response.Data {
		events = append(events, Event{
			ID:        r.ID,
			MetricID:  r.Relationships.Metric.Data.ID,
			Timestamp: r.Attributes.Timestamp,
		})
	}
	return events, nil
}

// ========== Reports ==========

// CampaignValues runs a campaign-values report for a batch of campaigns.
func (c *Client) CampaignValues(ctx context.Context, q CampaignValuesQuery) ([]CampaignStats, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/campaign-values-reports", nil, q.Body())
	if err != nil {
		return nil, err
	}

	var response campaignValuesResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse campaign values response: %w", err)
	}

	stats := make([]CampaignStats, 0, len(response.Data.Attributes.Results))
	for _, r := range response.Data.Attributes.Results {
		stats = append(stats, CampaignStats{
			CampaignID: r.Groupings["campaign_id"],
			Stats:      r.Statistics,
		})
	}
	return stats, nil
}

// FlowSeries runs a weekly flow-series report for one flow.
func (c *Client) FlowSeries(ctx context.Context, q FlowSeriesQuery) (*FlowSeriesResult, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/flow-series-reports", nil, q.Body())
	if err != nil {
		return nil, err
	}

	var response flowSeriesResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse flow series response: %w", err)
	}

	result := &FlowSeriesResult{
		DateTimes: response.Data.Attributes.DateTimes,
		Results:   make([]FlowSeriesRow, 0, len(response.Data.Attributes.Results)),
	}
	for _, r := range response.Data.Attributes.Results {
		result.Results = append(result.Results, FlowSeriesRow{
			FlowID:        r.Groupings["flow_id"],
			FlowMessageID: r.Groupings["flow_message_id"],
			Statistics:    r.Statistics,
		})
	}
	return result, nil
}

// SegmentSeries is intentionally a no-op: the upstream segment-series report
// and profile-count endpoints are unreliable for agency accounts, so segment
// analytics are disabled. It returns an empty result without issuing any
// HTTP request.
func (c *Client) SegmentSeries(ctx context.Context, segmentIDs []string) (*SegmentSeriesResult, error) {
	return &SegmentSeriesResult{Data: []FlowSeriesRow{}}, nil
}

// MetricAggregate runs a metric-aggregates query.
func (c *Client) MetricAggregate(ctx context.Context, q MetricAggregateQuery) (*MetricAggregateResult, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/metric-aggregates", nil, q.Body())
	if err != nil {
		return nil, err
	}

	var response metricAggregateResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse metric aggregates response: %w", err)
	}

	result := &MetricAggregateResult{
		Dates: response.Data.Attributes.Dates,
		Rows:  make([]MetricAggregateRow, 0, len(response.Data.Attributes.Data)),
	}
	for _, r := range response.Data.Attributes.Data {
		result.Rows = append(result.Rows, MetricAggregateRow{
			Dimensions:   r.Dimensions,
			Measurements: r.Measurements,
		})
	}
	return result, nil
}
