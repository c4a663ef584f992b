// Package shopify is a minimal Admin REST API client covering the calls the
// catalog sync engine needs: paginated product listing, variant price
// updates, absolute inventory sets, product creation and location lookup.
package shopify

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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVersion = "2024-01"
	// Fallback suspension when a 429 carries no Retry-After header.
	defaultRetryAfter = 10 * time.Second
)

// Config holds the connection settings for a Shopify store.
type Config struct {
	// StoreName is the *.myshopify.com subdomain.
	StoreName   string
	AccessToken string
	APIVersion  string

	// BaseURL overrides the store URL entirely. Used by tests; when set,
	// StoreName is ignored.
	BaseURL string

	// RequestsPerSecond bounds steady-state throughput. Zero means the
	// Shopify REST default of 2 req/s.
	RequestsPerSecond float64

	// RetryAfterDefault is the suspension used for a 429 without a
	// Retry-After header. Zero means 10s.
	RetryAfterDefault time.Duration
}

// Client is an authenticated Shopify Admin API client.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	accessToken       string
	rateLimiter       *rate.Limiter
	retryAfterDefault time.Duration
	log               *logrus.Entry
}

// NewClient creates a new Shopify Admin API client.
func NewClient(cfg Config, log *logrus.Entry) *Client {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.myshopify.com", cfg.StoreName)
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}
	retryAfter := cfg.RetryAfterDefault
	if retryAfter == 0 {
		retryAfter = defaultRetryAfter
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Client{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		baseURL:           fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(baseURL, "/"), apiVersion),
		accessToken:       cfg.AccessToken,
		rateLimiter:       rate.NewLimiter(rate.Limit(rps), 1),
		retryAfterDefault: retryAfter,
		log:               log,
	}
}

// APIError is a non-2xx response from the Shopify API. 429s are consumed
// by the client's retry loop and never surface as APIError.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify API error (status %d): %s", e.StatusCode, e.Body)
}

// ProductsPage is one page of the product listing plus its continuation
// cursor from the Link response header.
type ProductsPage struct {
	Products     []Product
	NextPageInfo string
	HasMore      bool
}

// ListProducts fetches a single page of products. pageInfo is the opaque
// cursor from a previous page's Link header; empty requests the first page.
func (c *Client) ListProducts(ctx context.Context, limit int, pageInfo string) (*ProductsPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if pageInfo != "" {
		// The cursor's encoded parameters are reused verbatim; the server
		// rejects requests that mix page_info with business filters.
		params.Set("page_info", pageInfo)
	}

	body, headers, err := c.doRequest(ctx, http.MethodGet, "/products.json", params, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Products []Product `json:"products"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse products response: %w", err)
	}

	page := &ProductsPage{Products: response.Products}
	if linkHeader := headers.Get("Link"); linkHeader != "" {
		page.NextPageInfo, page.HasMore = parsePagination(linkHeader)
	}
	return page, nil
}

// GetVariant fetches a single variant, used to resolve its inventory item id.
func (c *Client) GetVariant(ctx context.Context, variantID int64) (*Variant, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/variants/%d.json", variantID), nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Variant Variant `json:"variant"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse variant response: %w", err)
	}
	return &response.Variant, nil
}

// UpdateVariantPrice sets the price of a variant.
func (c *Client) UpdateVariantPrice(ctx context.Context, variantID int64, price decimal.Decimal) error {
	payload := map[string]interface{}{
		"variant": map[string]interface{}{
			"id":    variantID,
			"price": price.StringFixed(2),
		},
	}
	_, _, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/variants/%d.json", variantID), nil, payload)
	return err
}

// SetInventoryLevel sets the absolute available quantity of an inventory
// item at a location.
func (c *Client) SetInventoryLevel(ctx context.Context, locationID, inventoryItemID int64, available int) error {
	payload := map[string]interface{}{
		"location_id":       locationID,
		"inventory_item_id": inventoryItemID,
		"available":         available,
	}
	_, _, err := c.doRequest(ctx, http.MethodPost, "/inventory_levels/set.json", nil, payload)
	return err
}

// SetProductStatus sets the status of a product (active, draft, archived).
func (c *Client) SetProductStatus(ctx context.Context, productID int64, status string) error {
	payload := map[string]interface{}{
		"product": map[string]interface{}{
			"id":     productID,
			"status": status,
		},
	}
	_, _, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/products/%d.json", productID), nil, payload)
	return err
}

// ErrNoLocations is returned when the store has no stock locations.
var ErrNoLocations = fmt.Errorf("store has no stock locations")

// PrimaryLocation resolves the store's stock location id. Multi-location
// stores are not disambiguated; the first listed location is used.
func (c *Client) PrimaryLocation(ctx context.Context) (int64, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, "/locations.json", nil, nil)
	if err != nil {
		return 0, err
	}

	var response struct {
		Locations []struct {
			ID int64 `json:"id"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to parse locations response: %w", err)
	}
	if len(response.Locations) == 0 {
		return 0, ErrNoLocations
	}
	return response.Locations[0].ID, nil
}

// CreateProductRequest describes a new product with a single variant.
type CreateProductRequest struct {
	Title             string
	Vendor            string
	SKU               string
	Price             decimal.Decimal
	InventoryQuantity int
}

// CreateProduct creates a draft product with inventory tracking enabled and
// an oversell-denying inventory policy.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	payload := map[string]interface{}{
		"product": map[string]interface{}{
			"title":  req.Title,
			"vendor": req.Vendor,
			"status": "draft",
			"variants": []map[string]interface{}{
				{
					"sku":                  req.SKU,
					"price":                req.Price.StringFixed(2),
					"inventory_quantity":   req.InventoryQuantity,
					"inventory_management": "shopify",
					"inventory_policy":     "deny",
					"requires_shipping":    true,
				},
			},
		},
	}

	body, _, err := c.doRequest(ctx, http.MethodPost, "/products.json", nil, payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		Product Product `json:"product"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse create product response: %w", err)
	}
	return &response.Product, nil
}

// doRequest performs an authenticated HTTP request. Rate-limit responses
// (429) are retried against the same request without bound, suspending for
// the server-specified Retry-After interval; any other non-2xx status is
// returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, http.Header, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
	}

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return nil, nil, err
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, err
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := ParseRetryAfter(resp)
			if wait <= 0 {
				wait = c.retryAfterDefault
			}
			c.log.WithFields(logrus.Fields{
				"path":       path,
				"retryAfter": wait.String(),
			}).Warn("Rate limited, suspending before retry")

			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode >= 300 {
			return nil, nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, resp.Header, nil
	}
}

// parsePagination extracts the rel="next" page_info cursor from a Link
// header. Format: <url>; rel="next", <url>; rel="previous".
func parsePagination(linkHeader string) (string, bool) {
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		if strings.Contains(part, `rel="next"`) {
			urlPart := strings.TrimSpace(strings.Split(part, ";")[0])
			urlPart = strings.Trim(urlPart, "<>")
			if parsedURL, err := url.Parse(urlPart); err == nil {
				return parsedURL.Query().Get("page_info"), true
			}
		}
	}
	return "", false
}
