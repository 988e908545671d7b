// Package client talks to the storefront API on behalf of the kitshop CLI.
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
	"strings"
	"time"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	_ store.Remote  = (*Client)(nil)
	_ store.Refusal = (*Error)(nil)
)

// Error is a non-2xx answer from the API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("storefront: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("storefront: %s: %s", e.Code, e.Message)
}

// Refused reports whether the server turned the request down on its merits.
// Timeouts and rate limiting are worth retrying and are not refusals.
func (e *Error) Refused() bool {
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// HasCode reports whether err is an API error carrying code.
func HasCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) GetCart(ctx context.Context, p store.Principal) (*domain.Cart, error) {
	var resp api.CartResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", p, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Cart{
		Owner:     p.Owner,
		Items:     resp.Items,
		UpdatedAt: resp.UpdatedAt,
	}, nil
}

func (c *Client) AddItem(ctx context.Context, p store.Principal, catalogItemID string, quantity int) error {
	body := api.AddItemRequest{CatalogItemID: catalogItemID, Quantity: quantity}
	return c.do(ctx, http.MethodPost, "/api/v1/cart/items", p, body, nil)
}

func (c *Client) UpdateQuantity(ctx context.Context, p store.Principal, lineID string, quantity int) error {
	body := api.UpdateQuantityRequest{Quantity: quantity}
	return c.do(ctx, http.MethodPatch, "/api/v1/cart/items/"+url.PathEscape(lineID), p, body, nil)
}

func (c *Client) RemoveItem(ctx context.Context, p store.Principal, lineID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/cart/items/"+url.PathEscape(lineID), p, nil, nil)
}

// MergeCarts sends the anonymous session id alongside the account token; the
// server folds the session's cart into the account's.
func (c *Client) MergeCarts(ctx context.Context, sessionID string, account store.Principal) error {
	if account.Token == "" {
		return errors.New("merge requires an account token")
	}
	return c.doWithSession(ctx, http.MethodPost, "/api/v1/cart/merge", account, sessionID, nil, nil)
}

func (c *Client) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	err := c.do(ctx, http.MethodGet, "/api/v1/catalog", store.Principal{}, nil, &items)
	return items, err
}

func (c *Client) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog/"+url.PathEscape(id), store.Principal{}, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Checkout submits a handoff. The handoff total is sent as the expected total
// so the server refuses when the cart changed in the meantime.
func (c *Client) Checkout(ctx context.Context, p store.Principal, h domain.Handoff, shipTo domain.ShippingAddress, idempotencyKey string) (*domain.Order, error) {
	total := h.Total
	body := api.CheckoutRequest{
		IdempotencyKey: idempotencyKey,
		Shipping:       shipTo,
		ExpectedTotal:  &total,
	}
	var order domain.Order
	if err := c.do(ctx, http.MethodPost, "/api/v1/checkout", p, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) ListOrders(ctx context.Context, p store.Principal) ([]domain.Order, error) {
	var orders []domain.Order
	err := c.do(ctx, http.MethodGet, "/api/v1/orders", p, nil, &orders)
	return orders, err
}

func (c *Client) GetOrder(ctx context.Context, p store.Principal, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+id.String(), p, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) ListResults(ctx context.Context, p store.Principal) ([]domain.LabResult, error) {
	var results []domain.LabResult
	err := c.do(ctx, http.MethodGet, "/api/v1/results", p, nil, &results)
	return results, err
}

func (c *Client) GetResult(ctx context.Context, p store.Principal, id uuid.UUID) (*domain.LabResult, error) {
	var result domain.LabResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/results/"+id.String(), p, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, p store.Principal, in, out any) error {
	session := ""
	if p.Token == "" && p.Owner.IsAnonymous() {
		session = p.Owner.ID
	}
	return c.doWithSession(ctx, method, path, p, session, in, out)
}

func (c *Client) doWithSession(ctx context.Context, method, path string, p store.Principal, session string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
	if session != "" {
		req.Header.Set(api.HeaderCartSession, session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		apiErr.Code = payload.Code
		if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}
