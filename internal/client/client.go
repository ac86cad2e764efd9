package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfeidau/leadpool/internal/api"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
	// CacheDir persists the HTTP cache for company documents. Empty means in memory.
	CacheDir string
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Code, e.Message, e.StatusCode)
}

// ErrorCode returns the API error code carried by err, or "" if err is not an APIError.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Client talks to the leadpool HTTP API.
type Client struct {
	baseURL string
	token   string
	// api uses the caching transport; stream has no timeout and bypasses the cache.
	api    *http.Client
	stream *http.Client
}

// New creates a client from config.
func New(config Config) *Client {
	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		baseURL: strings.TrimRight(config.ServerURL, "/"),
		token:   config.Token,
		api: &http.Client{
			Transport: NewCachingTransport(config.CacheDir, base),
			Timeout:   config.Timeout,
		},
		stream: &http.Client{Transport: base},
	}
}

const maxPageSize = 500

// ListOptions filters ListCompanies.
type ListOptions struct {
	Claimed *bool
	Mine    bool
	Limit   int
	Offset  int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Claimed != nil {
		q.Set("claimed", strconv.FormatBool(*o.Claimed))
	}
	if o.Mine {
		q.Set("mine", "true")
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) ListCompanies(ctx context.Context, opts ListOptions) ([]api.Company, error) {
	var resp api.CompanyList
	if err := c.do(ctx, http.MethodGet, "/api/companies"+opts.query(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Companies, nil
}

// ListAllCompanies pages through the listing until the server returns a short page.
// opts.Limit sets the page size, capped at the server maximum of 500.
func (c *Client) ListAllCompanies(ctx context.Context, opts ListOptions) ([]api.Company, error) {
	if opts.Limit <= 0 || opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}

	var all []api.Company
	for {
		page, err := c.ListCompanies(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			return all, nil
		}
		opts.Offset += len(page)
	}
}

func (c *Client) GetCompany(ctx context.Context, companyID int64) (*api.Company, error) {
	var resp api.Company
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/companies/%d", companyID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Claim claims a company and returns the new lead id.
func (c *Client) Claim(ctx context.Context, companyID int64, req api.ClaimRequest) (int64, error) {
	var resp api.ClaimResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/companies/%d/claim", companyID), req, &resp); err != nil {
		return 0, err
	}
	return resp.LeadID, nil
}

func (c *Client) Unclaim(ctx context.Context, companyID int64, companyName string) error {
	var resp api.UnclaimResponse
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/companies/%d/unclaim", companyID),
		api.UnclaimRequest{CompanyName: companyName}, &resp)
}

func (c *Client) ListLeads(ctx context.Context) ([]api.Lead, error) {
	var resp api.LeadList
	if err := c.do(ctx, http.MethodGet, "/api/leads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Leads, nil
}

func (c *Client) GetLead(ctx context.Context, leadID int64) (*api.Lead, error) {
	var resp api.Lead
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/leads/%d", leadID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdateLead(ctx context.Context, leadID int64, update api.LeadUpdate) (*api.Lead, error) {
	var resp api.Lead
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/leads/%d", leadID), update, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// openEvents starts the notification stream request. The caller must close the body.
func (c *Client) openEvents(ctx context.Context) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		// the cache only stores bodies that were read to EOF
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}
