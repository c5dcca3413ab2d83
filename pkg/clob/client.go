package clob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Config holds CLOB endpoint and credentials.
type Config struct {
	Host  string
	Creds Credentials
}

// Client talks to the Polymarket CLOB REST API. Order endpoints require
// credentials; market-data endpoints are public.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a CLOB client.
func New(cfg Config) *Client {
	base := cfg.Host
	if base == "" {
		base = "https://clob.polymarket.com"
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// 10 req/s with a small burst keeps us well under venue limits.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type postOrderRequest struct {
	TokenID   string  `json:"token_id"`
	Price     float64 `json:"price,omitempty"`
	Size      float64 `json:"size"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	ClientID  string  `json:"client_id,omitempty"`
}

type postOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// ExecuteSignal signs and posts an order built from the intent.
func (c *Client) ExecuteSignal(ctx context.Context, intent OrderIntent) (OrderAck, error) {
	if c.cfg.Creds.Empty() {
		return OrderAck{}, errors.New("clob: API credentials required")
	}
	if intent.Quantity <= 0 {
		return OrderAck{}, fmt.Errorf("clob: invalid quantity %v", intent.Quantity)
	}
	if intent.Type == OrderTypeLimit && intent.Price <= 0 {
		return OrderAck{}, fmt.Errorf("clob: invalid limit price %v", intent.Price)
	}

	req := postOrderRequest{
		TokenID:   intent.TokenID,
		Price:     intent.Price,
		Size:      intent.Quantity,
		Side:      string(intent.Side),
		OrderType: string(intent.Type),
		ClientID:  intent.ClientID,
	}
	body, err := c.doSigned(ctx, http.MethodPost, "/order", req)
	if err != nil {
		return OrderAck{}, err
	}

	var resp postOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderAck{}, fmt.Errorf("decode order response: %w", err)
	}
	if !resp.Success {
		return OrderAck{}, fmt.Errorf("clob: order rejected: %s", resp.ErrorMsg)
	}
	return OrderAck{OrderID: resp.OrderID, Status: resp.Status}, nil
}

type orderStatusResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	SizeMatched string `json:"size_matched"`
}

// GetOrderStatus fetches the authoritative snapshot for one order.
// ok=false means the venue no longer knows the order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (StatusSnapshot, bool, error) {
	if c.cfg.Creds.Empty() {
		return StatusSnapshot{}, false, errors.New("clob: API credentials required")
	}

	path := "/data/order/" + orderID
	body, status, err := c.doSignedStatus(ctx, http.MethodGet, path, nil)
	if err != nil {
		return StatusSnapshot{}, false, err
	}
	if status == http.StatusNotFound {
		return StatusSnapshot{}, false, nil
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusSnapshot{}, false, fmt.Errorf("decode order status: %w", err)
	}
	return StatusSnapshot{
		OrderID:        resp.ID,
		Status:         resp.Status,
		FilledQuantity: toFloat(resp.SizeMatched),
		Price:          toFloat(resp.Price),
	}, true, nil
}

type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// CancelOrder asks the venue to cancel one order; returns whether it was cancelled.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if c.cfg.Creds.Empty() {
		return false, errors.New("clob: API credentials required")
	}

	body, err := c.doSigned(ctx, http.MethodDelete, "/order", map[string]string{"orderID": orderID})
	if err != nil {
		return false, err
	}
	var resp cancelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode cancel response: %w", err)
	}
	for _, id := range resp.Canceled {
		if id == orderID {
			return true, nil
		}
	}
	return false, nil
}

// CancelAll cancels every open order for the credentials.
func (c *Client) CancelAll(ctx context.Context) error {
	if c.cfg.Creds.Empty() {
		return errors.New("clob: API credentials required")
	}
	_, err := c.doSigned(ctx, http.MethodDelete, "/cancel-all", nil)
	return err
}

// doSigned performs a signed request and fails on any non-2xx status.
func (c *Client) doSigned(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, status, err := c.doSignedStatus(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("clob %s %s status %d: %s", method, path, status, string(body))
	}
	return body, nil
}

// doSignedStatus signs the request and returns body plus HTTP status so
// callers can treat 404 as "absent" rather than an error.
func (c *Client) doSignedStatus(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	var bodyStr string
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		bodyStr = string(raw)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	headers, err := c.cfg.Creds.authHeaders(method, path, bodyStr)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 && res.StatusCode != http.StatusNotFound {
		return nil, res.StatusCode, fmt.Errorf("clob %s %s status %d: %s", method, path, res.StatusCode, string(body))
	}
	return body, res.StatusCode, nil
}

// doPublic performs an unsigned GET and decodes JSON into out.
func (c *Client) doPublic(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return fmt.Errorf("clob GET %s status %d: %s", path, res.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func toFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
