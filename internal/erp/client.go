// Package erp is the HTTP client for the remote ERP backend. All
// persistence, validation, and business rules live server-side; this
// package only moves JSON and classifies failures.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// TimeLayout is the backend's date-time format: ISO-8601 local time
// truncated to seconds, no zone suffix.
const TimeLayout = "2006-01-02T15:04:05"

// ErrUnreachable indicates the backend could not be reached at all
// (connection refused, DNS failure, timeout). No response was received.
var ErrUnreachable = errors.New("erp backend unreachable")

// APIError is a response the backend actively rejected (4xx/5xx).
// Message carries the server's own wording when the body provided one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("erp: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("erp: status %d", e.Status)
}

// Client talks to the ERP REST API.
type Client struct {
	base string
	http *http.Client
	lg   *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, e.g. to install an
// instrumented transport or shorten timeouts in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Client for the given base URL (e.g.
// "http://erp:8080/api"). Outbound requests are traced via otelhttp.
func NewClient(baseURL string, lg *zap.Logger, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   15 * time.Second,
		},
		lg: lg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues a JSON request and decodes the response into out (when out is
// non-nil). Transport failures map to ErrUnreachable, error statuses to
// *APIError with the server message extracted from the body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnreachable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Some backend versions answer a write with 2xx and an empty body;
		// the sale is persisted, so out stays zero-valued instead of failing.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// responseError builds an *APIError from a non-2xx response, pulling the
// message out of a JSON body ({"message": ...} or {"error": ...}) when
// present, falling back to the raw body text.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	msg := ""
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			msg = parsed.Message
		} else if parsed.Error != "" {
			msg = parsed.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	return &APIError{Status: resp.StatusCode, Message: msg}
}

// ListProducts fetches the full product catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, http.MethodGet, "/produtos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProduct registers a new product and returns the stored entity.
func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "/produtos", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProduct saves changes to an existing product. Deployments differ on
// which verb the update endpoint accepts, so the verbs are negotiated in a
// fixed order, once per save: PUT, then PATCH on 405, then POST /{id} on a
// second 405. The verb that succeeded is logged for diagnosability.
func (c *Client) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	path := fmt.Sprintf("/produtos/%d", p.ID)
	verbs := []string{http.MethodPut, http.MethodPatch, http.MethodPost}

	var lastErr error
	for _, verb := range verbs {
		var out Product
		err := c.do(ctx, verb, path, p, &out)
		if err == nil {
			c.lg.Info("product saved",
				zap.Int64("product_id", p.ID),
				zap.String("verb", verb),
			)
			return &out, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusMethodNotAllowed {
			c.lg.Warn("update verb not allowed, trying next",
				zap.Int64("product_id", p.ID),
				zap.String("verb", verb),
			)
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/produtos/%d", id), nil, nil)
}

// ListClients fetches every registered customer.
func (c *Client) ListClients(ctx context.Context) ([]Customer, error) {
	var out []Customer
	if err := c.do(ctx, http.MethodGet, "/clientes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateClient registers a new customer.
func (c *Client) CreateClient(ctx context.Context, cl Customer) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/clientes", cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClient removes a customer.
func (c *Client) DeleteClient(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/clientes/%d", id), nil, nil)
}

// ListServices fetches the service catalog.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.do(ctx, http.MethodGet, "/servicos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits a finalized sale and returns the confirmed order.
func (c *Client) CreateOrder(ctx context.Context, sub SaleSubmission) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/ordens-venda", sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOrders fetches historical orders. start and end, when non-empty,
// bound the range as local date-times in TimeLayout.
func (c *Client) ListOrders(ctx context.Context, start, end string) ([]Order, error) {
	path := "/ordens-venda"
	if start != "" || end != "" {
		q := url.Values{}
		q.Set("start", start)
		q.Set("end", end)
		path += "?" + q.Encode()
	}
	var out []Order
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOrder removes a sale from the history.
func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/ordens-venda/%d", id), nil, nil)
}

// UploadReceipt attaches a rendered receipt document to an order via
// multipart upload.
func (c *Client) UploadReceipt(ctx context.Context, orderID int64, filename string, document []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("arquivo", filename)
	if err != nil {
		return errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(document); err != nil {
		return errors.Wrap(err, "write document")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "close multipart writer")
	}

	path := fmt.Sprintf("/ordens-venda/%d/comprovante", orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(ErrUnreachable, "POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	return nil
}

// DashboardTotals fetches aggregated sale totals per payment method for a
// date range. The response is a flat JSON object whose keys vary in casing
// between deployments, so it is decoded tolerantly with jx and the keys are
// normalized to upper case.
func (c *Client) DashboardTotals(ctx context.Context, start, end string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("start", start)
	q.Set("end", end)
	path := "/dashboard/totais?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read totals body")
	}

	totals := make(map[string]decimal.Decimal)
	dec := jx.DecodeBytes(body)
	if err := dec.Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Num()
		if err != nil {
			return errors.Wrapf(err, "totals key %q", key)
		}
		v, err := decimal.NewFromString(raw.String())
		if err != nil {
			return errors.Wrapf(err, "totals key %q", key)
		}
		totals[strings.ToUpper(key)] = v
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode totals")
	}
	return totals, nil
}
