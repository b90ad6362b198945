// Package telegram talks to the Bot API endpoints that own a bot's polling
// session: getUpdates, deleteWebhook and getWebhookInfo.
package telegram

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

	"pollguard/internal/domain"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// DefaultProbeTimeout bounds a probe when the caller passes no timeout.
const DefaultProbeTimeout = 10 * time.Second

const maxBody = 1 << 20

// Client implements domain.SessionProbe, domain.SessionResetter and
// domain.WebhookInspector.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  domain.Logger
}

// NewClient creates a Bot API client. The token is embedded in request
// URLs and scrubbed from every error it produces.
func NewClient(baseURL, token string, logger domain.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

// apiResponse is the envelope shared by every Bot API method.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Probe issues one getUpdates with limit=1 and no long-poll wait. offset=-1
// only peeks at the newest update, so nothing the bot has not handled yet is
// confirmed away.
func (c *Client) Probe(ctx context.Context, timeout time.Duration) domain.ProbeResult {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("offset", "-1")
	params.Set("limit", "1")
	params.Set("timeout", "0")

	status, resp, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return domain.ProbeResult{Status: domain.ProbeOtherError, Detail: err.Error()}
	}
	return classify(status, resp)
}

// classify maps a Bot API reply onto the probe taxonomy.
func classify(status int, resp apiResponse) domain.ProbeResult {
	if resp.OK {
		return domain.ProbeResult{Status: domain.ProbeClear, Detail: "getUpdates ok"}
	}
	code := resp.ErrorCode
	if code == 0 {
		code = status
	}
	detail := fmt.Sprintf("HTTP %d: %s", code, resp.Description)
	switch code {
	case http.StatusConflict:
		return domain.ProbeResult{Status: domain.ProbeConflict, Detail: resp.Description}
	case http.StatusTooManyRequests:
		r := domain.ProbeResult{Status: domain.ProbeOtherError, Detail: detail}
		if resp.Parameters != nil {
			r.RetryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return r
	default:
		return domain.ProbeResult{Status: domain.ProbeOtherError, Detail: detail}
	}
}

// Reset deletes any webhook and drops updates queued while nobody polled.
// Deleting an absent webhook succeeds.
func (c *Client) Reset(ctx context.Context) domain.ResetResult {
	params := url.Values{}
	params.Set("drop_pending_updates", "true")

	status, resp, err := c.call(ctx, "deleteWebhook", params)
	if err != nil {
		return domain.ResetResult{Detail: err.Error()}
	}
	if !resp.OK {
		code := resp.ErrorCode
		if code == 0 {
			code = status
		}
		return domain.ResetResult{Detail: fmt.Sprintf("HTTP %d: %s", code, resp.Description)}
	}
	detail := resp.Description
	if detail == "" {
		detail = "webhook deleted"
	}
	return domain.ResetResult{OK: true, Detail: detail}
}

// WebhookInfo reports the current webhook registration.
func (c *Client) WebhookInfo(ctx context.Context) (domain.WebhookInfo, error) {
	status, resp, err := c.call(ctx, "getWebhookInfo", nil)
	if err != nil {
		return domain.WebhookInfo{}, err
	}
	if !resp.OK {
		return domain.WebhookInfo{}, fmt.Errorf("getWebhookInfo: HTTP %d: %s", status, resp.Description)
	}
	var info struct {
		URL                string `json:"url"`
		PendingUpdateCount int    `json:"pending_update_count"`
		LastErrorMessage   string `json:"last_error_message"`
	}
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return domain.WebhookInfo{}, fmt.Errorf("decode getWebhookInfo: %w", err)
	}
	return domain.WebhookInfo{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorMessage:   info.LastErrorMessage,
	}, nil
}

// call performs one Bot API request. Non-2xx replies still carry the JSON
// envelope, so they are decoded rather than treated as transport errors.
func (c *Client) call(ctx context.Context, method string, params url.Values) (int, apiResponse, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, apiResponse{}, c.scrub(fmt.Errorf("build %s request: %w", method, err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apiResponse{}, c.scrub(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, apiResponse{}, c.scrub(fmt.Errorf("read %s response: %w", method, err))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return resp.StatusCode, apiResponse{}, fmt.Errorf("%s returned HTTP %d with undecodable body", method, resp.StatusCode)
	}
	if c.logger != nil {
		c.logger.Debug("bot api reply", "method", method, "status", resp.StatusCode, "ok", out.OK, "bytes", len(body))
		if !out.OK {
			c.logger.Warn("bot api error", "method", method, "status", resp.StatusCode, "description", out.Description)
		}
	}
	return resp.StatusCode, out, nil
}

// scrub keeps the bot token out of error text, since net/http errors quote
// the full request URL.
func (c *Client) scrub(err error) error {
	if c.token == "" || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), c.token, "<token>"))
}
