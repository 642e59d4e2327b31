package productregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

const (
	defaultTimeout = 10 * time.Second
	productsPath   = "/products"
	customerPath   = "/products/customer"
	cardsPath      = "/debit-cards"
)

// Client talks to the product registry over HTTP. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ product.Gateway = (*Client)(nil)

// NewClient creates a registry client for baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ProductResponse is the registry envelope for product calls
type ProductResponse struct {
	Status   int                    `json:"status"`
	Message  string                 `json:"message"`
	Products []*product.BankProduct `json:"products"`
}

// ProductListResponse is the registry envelope for list calls. Products are
// kept raw so one undecodable entry does not reject the whole list.
type ProductListResponse struct {
	Status   int               `json:"status"`
	Message  string            `json:"message"`
	Products []json.RawMessage `json:"products"`
}

// CardResponse is the registry envelope for debit card calls
type CardResponse struct {
	Status   int             `json:"status"`
	Message  string          `json:"message"`
	Products []*product.Card `json:"products"`
}

// ErrorResponse represents an error response from the registry
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Get fetches a product by id
func (c *Client) Get(ctx context.Context, id string) (*product.BankProduct, error) {
	var resp ProductResponse
	if err := c.do(ctx, http.MethodGet, productsPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, c.classify("product", id, err)
	}
	if len(resp.Products) == 0 || resp.Products[0] == nil {
		return nil, failure.NotFound("product", id)
	}
	return resp.Products[0], nil
}

// ListByCustomer fetches every product owned by customerID. A registry 404
// means the customer has no products.
func (c *Client) ListByCustomer(ctx context.Context, customerID string) ([]*product.BankProduct, error) {
	var resp ProductListResponse
	err := c.do(ctx, http.MethodGet, customerPath+"/"+url.PathEscape(customerID), nil, &resp)
	if isStatus(err, http.StatusNotFound) {
		return []*product.BankProduct{}, nil
	}
	if err != nil {
		return nil, c.classify("customer products", customerID, err)
	}
	return decodeProducts(resp.Products), nil
}

// ListAll fetches every product in the registry. Entries that cannot be
// decoded are logged and left out.
func (c *Client) ListAll(ctx context.Context) ([]*product.BankProduct, error) {
	var resp ProductListResponse
	if err := c.do(ctx, http.MethodGet, productsPath, nil, &resp); err != nil {
		return nil, c.classify("products", "", err)
	}
	return decodeProducts(resp.Products), nil
}

func decodeProducts(raw []json.RawMessage) []*product.BankProduct {
	products := make([]*product.BankProduct, 0, len(raw))
	for i, entry := range raw {
		var p product.BankProduct
		if err := json.Unmarshal(entry, &p); err != nil {
			log.Printf("Skipping registry product %d (id %q): %v", i, p.ID, err)
			continue
		}
		products = append(products, &p)
	}
	return products
}

// Update replaces the whole product in the registry
func (c *Client) Update(ctx context.Context, p *product.BankProduct) (*product.BankProduct, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product: %w", err)
	}

	var resp ProductResponse
	if err := c.do(ctx, http.MethodPut, productsPath+"/"+url.PathEscape(p.ID), body, &resp); err != nil {
		return nil, c.classify("product", p.ID, err)
	}
	if len(resp.Products) == 0 || resp.Products[0] == nil {
		return p, nil
	}
	return resp.Products[0], nil
}

// GetCard fetches a debit card by id
func (c *Client) GetCard(ctx context.Context, id string) (*product.Card, error) {
	var resp CardResponse
	if err := c.do(ctx, http.MethodGet, cardsPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, c.classify("card", id, err)
	}
	if len(resp.Products) == 0 || resp.Products[0] == nil {
		return nil, failure.NotFound("card", id)
	}
	return resp.Products[0], nil
}

// StatusError is a non-2xx registry response
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry request failed with status %d: %s", e.StatusCode, e.Message)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == code
}

func (c *Client) classify(resource, id string, err error) error {
	if isStatus(err, http.StatusNotFound) {
		return failure.NotFound(resource, id)
	}
	return failure.Upstream("registry "+resource, err)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		msg := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			msg = errResp.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
