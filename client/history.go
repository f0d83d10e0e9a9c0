package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Reclaim is one recorded reclaim transaction from the history service.
type Reclaim struct {
	ID                int64     `json:"id"`
	WalletAddress     string    `json:"wallet_address"`
	Signature         string    `json:"signature"`
	AccountsClosed    int       `json:"accounts_closed"`
	ReclaimedLamports uint64    `json:"reclaimed_lamports"`
	Tier              string    `json:"tier"`
	Message           string    `json:"message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Bump is one recorded bump swap from the history service.
type Bump struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	TokenMint     string    `json:"token_mint"`
	Signature     string    `json:"signature"`
	Lamports      uint64    `json:"lamports"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateReclaimParams are the fields for recording a completed reclaim.
type CreateReclaimParams struct {
	WalletAddress     string `json:"wallet_address"`
	Signature         string `json:"signature"`
	AccountsClosed    int    `json:"accounts_closed"`
	ReclaimedLamports uint64 `json:"reclaimed_lamports"`
	Tier              string `json:"tier,omitempty"`
	Message           string `json:"message,omitempty"`
}

// CreateBumpParams are the fields for recording a bump swap.
type CreateBumpParams struct {
	WalletAddress string `json:"wallet_address"`
	TokenMint     string `json:"token_mint"`
	Signature     string `json:"signature"`
	Lamports      uint64 `json:"lamports"`
}

// ListParams are optional filters for history listings.
type ListParams struct {
	Address string
	Limit   int
	Offset  int
}

// Client is the HTTP client for the reclaim history service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new history service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateReclaim records a completed reclaim transaction.
func (c *Client) CreateReclaim(ctx context.Context, params CreateReclaimParams) (*Reclaim, error) {
	var rec Reclaim
	if err := c.post(ctx, "/api/v1/reclaims", params, &rec); err != nil {
		return nil, err
	}
	c.logger.Debug("reclaim recorded", "wallet", rec.WalletAddress, "signature", rec.Signature)
	return &rec, nil
}

// ListReclaims retrieves reclaim history, most recent first. An empty
// ListParams.Address lists across all wallets.
func (c *Client) ListReclaims(ctx context.Context, params ListParams) ([]*Reclaim, error) {
	var response struct {
		Reclaims []*Reclaim `json:"reclaims"`
	}
	if err := c.get(ctx, "/api/v1/reclaims", params, &response); err != nil {
		return nil, err
	}
	return response.Reclaims, nil
}

// DeleteReclaims removes a wallet's reclaim history.
func (c *Client) DeleteReclaims(ctx context.Context, address string) error {
	u := fmt.Sprintf("%s/api/v1/reclaims/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("reclaim history deleted", "address", address)
	return nil
}

// CreateBump records a bump swap.
func (c *Client) CreateBump(ctx context.Context, params CreateBumpParams) (*Bump, error) {
	var bump Bump
	if err := c.post(ctx, "/api/v1/bumps", params, &bump); err != nil {
		return nil, err
	}
	return &bump, nil
}

// ListBumps retrieves a wallet's bump history, most recent first.
func (c *Client) ListBumps(ctx context.Context, params ListParams) ([]*Bump, error) {
	var response struct {
		Bumps []*Bump `json:"bumps"`
	}
	if err := c.get(ctx, "/api/v1/bumps", params, &response); err != nil {
		return nil, err
	}
	return response.Bumps, nil
}

// post sends a JSON body and decodes a 201 response into out.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// get sends a GET with list filters and decodes a 200 response into out.
func (c *Client) get(ctx context.Context, path string, params ListParams, out interface{}) error {
	u := c.baseURL + path
	q := url.Values{}
	if params.Address != "" {
		q.Set("address", params.Address)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
