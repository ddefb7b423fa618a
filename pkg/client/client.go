// Package client is a typed HTTP client for the sweetshop API. Error envelopes are decoded back
// into *errors.Error so callers can branch on codes such as OUT_OF_STOCK.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sweetshop-backend/internal/auth"
	"github.com/angelmondragon/sweetshop-backend/internal/cart"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/types"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxResponseBytes  = 4 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid base url %q", raw))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: base, token: strings.TrimSpace(opts.Token), http: httpClient}, nil
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

func (c *Client) Login(ctx context.Context, email, password string) (*auth.AuthResponse, error) {
	var out auth.AuthResponse
	body := auth.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*auth.AuthResponse, error) {
	var out auth.AuthResponse
	body := auth.RegisterRequest{Name: name, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SweetFilters mirrors the catalog query parameters. Zero values are omitted.
type SweetFilters struct {
	Query    string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Featured *bool
}

func (f SweetFilters) values() url.Values {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.MinPrice != nil {
		q.Set("min_price", f.MinPrice.String())
	}
	if f.MaxPrice != nil {
		q.Set("max_price", f.MaxPrice.String())
	}
	if f.Featured != nil {
		q.Set("featured", strconv.FormatBool(*f.Featured))
	}
	return q
}

func (c *Client) ListSweets(ctx context.Context, filters SweetFilters) ([]sweets.SweetDTO, error) {
	var out []sweets.SweetDTO
	if err := c.do(ctx, http.MethodGet, "/api/sweets", filters.values(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSweet(ctx context.Context, id uuid.UUID) (*sweets.SweetDTO, error) {
	var out sweets.SweetDTO
	if err := c.do(ctx, http.MethodGet, "/api/sweets/"+id.String(), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Purchase buys exactly one unit. It is not idempotent.
func (c *Client) Purchase(ctx context.Context, id uuid.UUID) (*sweets.PurchaseResult, error) {
	var out sweets.PurchaseResult
	if err := c.do(ctx, http.MethodPost, "/api/sweets/"+id.String()+"/purchase", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Restock(ctx context.Context, id uuid.UUID, quantity int, idempotencyKey string) (*sweets.SweetDTO, error) {
	var out sweets.SweetDTO
	body := map[string]int{"quantity": quantity}
	if err := c.do(ctx, http.MethodPost, "/api/sweets/"+id.String()+"/restock", nil, body, idempotencyHeaders(idempotencyKey), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type checkoutBody struct {
	Items       []cart.CheckoutLine `json:"items"`
	ClientTotal *decimal.Decimal    `json:"client_total,omitempty"`
}

// Checkout places an order for items. An empty idempotency key gets a fresh one.
func (c *Client) Checkout(ctx context.Context, items []cart.CheckoutLine, clientTotal *decimal.Decimal, idempotencyKey string) (*orders.OrderDTO, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	var out orders.OrderDTO
	body := checkoutBody{Items: items, ClientTotal: clientTotal}
	if err := c.do(ctx, http.MethodPost, "/api/orders", nil, body, idempotencyHeaders(idempotencyKey), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MyOrders(ctx context.Context, limit int, cursor string) (*orders.OrderList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out orders.OrderList
	if err := c.do(ctx, http.MethodGet, "/api/orders/my", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func idempotencyHeaders(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{idempotencyHeader: key}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string, out any) error {
	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}

	var envelope types.Envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode response envelope")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode response data")
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return pkgerrors.New(codeForStatus(status), http.StatusText(status))
	}
	typed := pkgerrors.New(pkgerrors.ParseCode(envelope.Error.Code), envelope.Error.Message)
	if envelope.Error.Details != nil {
		typed = typed.WithDetails(envelope.Error.Details)
	}
	return typed
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeInternal
	}
}
