package xero

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

// PageSize is fixed by the Xero accounting API.
const PageSize = 100

const apiPrefix = "/api.xro/2.0"

var errLoggerRequired = errors.New("xero logger is required")

// Client is a thin Xero accounting API executor. It does not cache or retry.
type Client struct {
	http   *resty.Client
	logger *logger.Logger
}

// APIError is a non-2xx Xero response.
type APIError struct {
	StatusCode int
	Type       string `json:"Type"`
	Message    string `json:"Message"`
	Title      string `json:"Title"`
	Detail     string `json:"Detail"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Detail
	}
	if msg == "" {
		msg = e.Title
	}
	return fmt.Sprintf("xero status %d: %s %s", e.StatusCode, e.Type, msg)
}

func NewClient(cfg config.XeroConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.xero.com"
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	return &Client{http: rc, logger: logg}, nil
}

// Connections lists the organisations authorised for accessToken.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]Connection, error) {
	var out []Connection
	req := c.http.R().SetContext(ctx).SetAuthToken(accessToken)
	if err := c.sendJSON(ctx, req, http.MethodGet, "list_connections", "/connections", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Contacts pages through contacts matching where.
func (c *Client) Contacts(ctx context.Context, auth Auth, where string) ([]Contact, error) {
	return pageAll(ctx, c, auth, "list_contacts", "/Contacts", map[string]string{"where": where},
		func(raw []byte) ([]Contact, error) {
			var out struct {
				Contacts []Contact `json:"Contacts"`
			}
			err := json.Unmarshal(raw, &out)
			return out.Contacts, err
		})
}

// Quotes pages through quotes for a contact. An empty status lists every status.
func (c *Client) Quotes(ctx context.Context, auth Auth, contactID, status string) ([]Quote, error) {
	params := map[string]string{"ContactID": contactID, "Status": status}
	return pageAll(ctx, c, auth, "list_quotes", "/Quotes", params, decodeQuotes)
}

// Quote reads one quote by id.
func (c *Client) Quote(ctx context.Context, auth Auth, id string) (*Quote, error) {
	var out struct {
		Quotes []Quote `json:"Quotes"`
	}
	if err := c.sendJSON(ctx, c.authed(ctx, auth), http.MethodGet, "get_quote", apiPrefix+"/Quotes/"+id, &out); err != nil {
		return nil, err
	}
	if len(out.Quotes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "xero quote not found")
	}
	return &out.Quotes[0], nil
}

// UpdateQuote writes the quote's line items and returns the stored version.
func (c *Client) UpdateQuote(ctx context.Context, auth Auth, quote Quote) (*Quote, error) {
	var out struct {
		Quotes []Quote `json:"Quotes"`
	}
	req := c.authed(ctx, auth).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"Quotes": []Quote{quote}})
	if err := c.sendJSON(ctx, req, http.MethodPost, "update_quote", apiPrefix+"/Quotes/"+quote.QuoteID, &out); err != nil {
		return nil, err
	}
	if len(out.Quotes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero update_quote returned no quote")
	}
	return &out.Quotes[0], nil
}

// Items lists items matching where. The Items endpoint is not paginated.
func (c *Client) Items(ctx context.Context, auth Auth, where string) ([]Item, error) {
	var out struct {
		Items []Item `json:"Items"`
	}
	req := c.authed(ctx, auth)
	if where != "" {
		req.SetQueryParam("where", where)
	}
	if err := c.sendJSON(ctx, req, http.MethodGet, "list_items", apiPrefix+"/Items", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Item reads one item by id or code.
func (c *Client) Item(ctx context.Context, auth Auth, id string) (*Item, error) {
	var out struct {
		Items []Item `json:"Items"`
	}
	if err := c.sendJSON(ctx, c.authed(ctx, auth), http.MethodGet, "get_item", apiPrefix+"/Items/"+id, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "xero item not found")
	}
	return &out.Items[0], nil
}

func decodeQuotes(raw []byte) ([]Quote, error) {
	var out struct {
		Quotes []Quote `json:"Quotes"`
	}
	err := json.Unmarshal(raw, &out)
	return out.Quotes, err
}

func pageAll[T any](ctx context.Context, c *Client, auth Auth, op, path string, params map[string]string, decode func([]byte) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		req := c.authed(ctx, auth).SetQueryParam("page", strconv.Itoa(page))
		for k, v := range params {
			if v != "" {
				req.SetQueryParam(k, v)
			}
		}
		body, err := c.send(ctx, req, http.MethodGet, op, apiPrefix+path)
		if err != nil {
			return nil, err
		}
		items, err := decode(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode xero %s page", op))
		}
		all = append(all, items...)
		if len(items) < PageSize {
			return all, nil
		}
	}
}

func (c *Client) authed(ctx context.Context, auth Auth) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(auth.AccessToken).
		SetHeader("Xero-tenant-id", auth.TenantID)
}

func (c *Client) send(ctx context.Context, req *resty.Request, method, op, path string) ([]byte, error) {
	c.log(ctx, "request", op, map[string]any{"path": path, "tenant": req.Header.Get("Xero-tenant-id")})
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("xero %s failed", op))
	}
	if resp.IsError() {
		apiErr := &APIError{}
		_ = json.Unmarshal(resp.Body(), apiErr)
		apiErr.StatusCode = resp.StatusCode()
		c.log(ctx, "error", op, map[string]any{"error": apiErr.Error(), "status": resp.StatusCode()})
		return nil, pkgerrors.Wrap(domainCodeForStatus(apiErr.StatusCode), apiErr, fmt.Sprintf("xero %s failed", op))
	}
	c.log(ctx, "response", op, map[string]any{"status": resp.StatusCode()})
	return resp.Body(), nil
}

func (c *Client) sendJSON(ctx context.Context, req *resty.Request, method, op, path string, out any) error {
	body, err := c.send(ctx, req, method, op, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode xero %s response", op))
	}
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
		c.logger.Error(ctx, fmt.Sprintf("xero %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("xero %s", phase))
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
