package qbo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	staleObjectCode = "5010"
)

var (
	// ErrStaleObject is matched by API errors rejecting an out-of-date SyncToken.
	ErrStaleObject = errors.New("qbo stale object")

	errLoggerRequired = errors.New("qbo logger is required")
	errInvalidEnv     = fmt.Errorf("qbo environment must be %q or %q", sandboxEnv, productionEnv)
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://sandbox-quickbooks.api.intuit.com",
	productionEnv: "https://quickbooks.api.intuit.com",
}

// Client is a thin QuickBooks Online accounting API executor. It does not cache
// or retry.
type Client struct {
	http         *resty.Client
	minorVersion string
	pageSize     int
	logger       *logger.Logger
}

// APIError is a non-2xx QBO response.
type APIError struct {
	StatusCode int
	Fault      Fault
}

func (e *APIError) Error() string {
	if len(e.Fault.Errors) == 0 {
		return fmt.Sprintf("qbo status %d", e.StatusCode)
	}
	first := e.Fault.Errors[0]
	return fmt.Sprintf("qbo status %d: %s (%s) %s", e.StatusCode, first.Message, first.Code, first.Detail)
}

// Is lets errors.Is match ErrStaleObject.
func (e *APIError) Is(target error) bool {
	if target != ErrStaleObject {
		return false
	}
	for _, fe := range e.Fault.Errors {
		if fe.Code == staleObjectCode {
			return true
		}
	}
	return false
}

// NewClient builds the client from config.
func NewClient(cfg config.QBOConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		var ok bool
		baseURL, ok = baseURLs[cfg.Environment()]
		if !ok {
			return nil, errInvalidEnv
		}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	return &Client{
		http:         rc,
		minorVersion: cfg.MinorVersion,
		pageSize:     pageSize,
		logger:       logg,
	}, nil
}

// QueryCustomers pages through customers matching where.
func (c *Client) QueryCustomers(ctx context.Context, auth Auth, where string) ([]Customer, error) {
	return queryAll[Customer](ctx, c, auth, "Customer", where)
}

// QueryEstimates pages through estimates matching where.
func (c *Client) QueryEstimates(ctx context.Context, auth Auth, where string) ([]Estimate, error) {
	return queryAll[Estimate](ctx, c, auth, "Estimate", where)
}

// QueryItems pages through items matching where.
func (c *Client) QueryItems(ctx context.Context, auth Auth, where string) ([]Item, error) {
	return queryAll[Item](ctx, c, auth, "Item", where)
}

// GetEstimate reads one estimate by id.
func (c *Client) GetEstimate(ctx context.Context, auth Auth, id string) (*Estimate, error) {
	var out struct {
		Estimate Estimate `json:"Estimate"`
	}
	if err := c.do(ctx, auth, http.MethodGet, "get_estimate", "/estimate/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Estimate, nil
}

// GetItem reads one item by id.
func (c *Client) GetItem(ctx context.Context, auth Auth, id string) (*Item, error) {
	var out struct {
		Item Item `json:"Item"`
	}
	if err := c.do(ctx, auth, http.MethodGet, "get_item", "/item/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

// UpdateEstimate writes the estimate. SyncToken must match the server version or
// the call fails with an error matching ErrStaleObject.
func (c *Client) UpdateEstimate(ctx context.Context, auth Auth, estimate Estimate) (*Estimate, error) {
	var out struct {
		Estimate Estimate `json:"Estimate"`
	}
	if err := c.do(ctx, auth, http.MethodPost, "update_estimate", "/estimate", nil, estimate, &out); err != nil {
		return nil, err
	}
	return &out.Estimate, nil
}

func queryAll[T any](ctx context.Context, c *Client, auth Auth, entity, where string) ([]T, error) {
	var all []T
	for start := 1; ; start += c.pageSize {
		var out struct {
			QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
		}
		params := map[string]string{"query": buildQuery(entity, where, start, c.pageSize)}
		op := "query_" + strings.ToLower(entity)
		if err := c.do(ctx, auth, http.MethodGet, op, "/query", params, nil, &out); err != nil {
			return nil, err
		}

		var page []T
		if raw, ok := out.QueryResponse[entity]; ok {
			if err := json.Unmarshal(raw, &page); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode qbo %s page", entity))
			}
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
	}
}

func (c *Client) do(ctx context.Context, auth Auth, method, op, path string, params map[string]string, body, out any) error {
	if strings.TrimSpace(auth.RealmID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "qbo realm id is required")
	}
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(auth.AccessToken).
		SetQueryParams(params)
	if c.minorVersion != "" {
		req.SetQueryParam("minorversion", c.minorVersion)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	c.log(ctx, "request", op, map[string]any{"realm_id": auth.RealmID, "path": path, "query": params["query"]})
	resp, err := req.Execute(method, "/v3/company/"+auth.RealmID+path)
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("qbo %s failed", op))
	}
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		var payload struct {
			Fault Fault `json:"Fault"`
		}
		if json.Unmarshal(resp.Body(), &payload) == nil {
			apiErr.Fault = payload.Fault
		}
		c.log(ctx, "error", op, map[string]any{"error": apiErr.Error(), "status": resp.StatusCode()})
		return mapError(apiErr, op)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode qbo %s response", op))
	}
	c.log(ctx, "response", op, map[string]any{"status": resp.StatusCode()})
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("qbo %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("qbo %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "authorization", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func mapError(apiErr *APIError, op string) error {
	code := domainCodeForStatus(apiErr.StatusCode)
	if errors.Is(apiErr, ErrStaleObject) {
		code = pkgerrors.CodeConflict
	}
	return pkgerrors.Wrap(code, apiErr, fmt.Sprintf("qbo %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
