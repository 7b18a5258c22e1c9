// Package rest implements domain.EndpointHandle over a SharePoint-style
// REST list API.
package rest

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

	"github.com/opensource-finance/heron/internal/domain"
)

const (
	acceptNoMetadata = "application/json;odata=nometadata"
	maxErrorBody     = 4 << 10
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// TokenSource supplies bearer tokens, refreshing them as needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that never changes.
type StaticToken string

// Token returns the token.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Handle talks to one site.
type Handle struct {
	site   string
	client *http.Client
	tokens TokenSource
}

var _ domain.EndpointHandle = (*Handle)(nil)

// Option configures a Handle.
type Option func(*Handle)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handle) { h.client = c }
}

// WithTokenSource authenticates every request with tokens from ts.
func WithTokenSource(ts TokenSource) Option {
	return func(h *Handle) { h.tokens = ts }
}

// WithToken authenticates with a fixed bearer token.
func WithToken(token string) Option {
	return func(h *Handle) {
		if token != "" {
			h.tokens = StaticToken(token)
		}
	}
}

// New returns a handle for site. No request is made.
func New(site string, opts ...Option) *Handle {
	h := &Handle{
		site:   strings.TrimRight(strings.TrimSpace(site), "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// URL returns the site URL.
func (h *Handle) URL() string { return h.site }

func (h *Handle) listPath(list domain.CollectionRef) string {
	title := strings.ReplaceAll(string(list), "'", "''")
	return h.site + "/_api/web/lists/getbytitle('" + url.PathEscape(title) + "')/items"
}

func (h *Handle) itemPath(list domain.CollectionRef, id int) string {
	return h.listPath(list) + "(" + strconv.Itoa(id) + ")"
}

func shapeParams(sel, expand []string) url.Values {
	v := url.Values{}
	if len(sel) > 0 {
		v.Set("$select", strings.Join(sel, ","))
	}
	if len(expand) > 0 {
		v.Set("$expand", strings.Join(expand, ","))
	}
	return v
}

// Items runs one paged query.
func (h *Handle) Items(ctx context.Context, list domain.CollectionRef, q domain.Query) ([]domain.Record, error) {
	params := shapeParams(q.Select, q.Expand)
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if q.OrderBy != "" {
		params.Set("$orderby", q.OrderBy)
	}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}

	body, err := h.do(ctx, http.MethodGet, h.listPath(list), params, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(body)
}

// Item reads one row.
func (h *Handle) Item(ctx context.Context, list domain.CollectionRef, id int, opts domain.ReadOptions) (domain.Record, error) {
	body, err := h.do(ctx, http.MethodGet, h.itemPath(list, id), shapeParams(opts.Select, opts.Expand), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeItem(body)
}

// AddItem posts a new row and returns the echoed record.
func (h *Handle) AddItem(ctx context.Context, list domain.CollectionRef, fields domain.Record) (domain.Record, error) {
	body, err := h.do(ctx, http.MethodPost, h.listPath(list), nil, fields, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.Record{}, nil
	}
	return decodeItem(body)
}

// UpdateItem merges fields into a row.
func (h *Handle) UpdateItem(ctx context.Context, list domain.CollectionRef, id int, fields domain.Record) error {
	headers := map[string]string{"X-HTTP-Method": "MERGE", "IF-MATCH": "*"}
	_, err := h.do(ctx, http.MethodPost, h.itemPath(list, id), nil, fields, headers)
	return err
}

// DeleteItem removes a row.
func (h *Handle) DeleteItem(ctx context.Context, list domain.CollectionRef, id int) error {
	headers := map[string]string{"X-HTTP-Method": "DELETE", "IF-MATCH": "*"}
	_, err := h.do(ctx, http.MethodPost, h.itemPath(list, id), nil, nil, headers)
	return err
}

// Versions lists the revisions of a row.
func (h *Handle) Versions(ctx context.Context, list domain.CollectionRef, id int, opts domain.ReadOptions) ([]domain.Record, error) {
	body, err := h.do(ctx, http.MethodGet, h.itemPath(list, id)+"/versions", shapeParams(opts.Select, opts.Expand), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(body)
}

// EnsureUser resolves a login to a site user, adding it to the site when
// needed.
func (h *Handle) EnsureUser(ctx context.Context, login string) (domain.PersonRef, error) {
	body, err := h.do(ctx, http.MethodPost, h.site+"/_api/web/ensureuser", nil, map[string]string{"logonName": login}, nil)
	if err != nil {
		return domain.PersonRef{}, err
	}
	r, err := decodeItem(body)
	if err != nil {
		return domain.PersonRef{}, err
	}
	return domain.PersonRef{
		ID:          r.ID(),
		Email:       r.String("Email"),
		LoginName:   r.String("LoginName"),
		DisplayName: r.String("Title"),
	}, nil
}

func (h *Handle) do(ctx context.Context, method, endpoint string, params url.Values, payload any, headers map[string]string) ([]byte, error) {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptNoMetadata)
	if payload != nil {
		req.Header.Set("Content-Type", acceptNoMetadata)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if h.tokens != nil {
		token, err := h.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, statusErr)
		}
		return nil, statusErr
	}
	return io.ReadAll(resp.Body)
}

// unwrap strips the verbose {"d": ...} envelope.
func unwrap(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		if d, ok := m["d"]; ok {
			return d, nil
		}
	}
	return v, nil
}

func decodeList(body []byte) ([]domain.Record, error) {
	v, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	var raw []any
	switch t := v.(type) {
	case []any:
		raw = t
	case map[string]any:
		if results, ok := t["results"].([]any); ok {
			raw = results
		} else if value, ok := t["value"].([]any); ok {
			raw = value
		} else {
			return nil, errors.New("decode response: no result set")
		}
	default:
		return nil, errors.New("decode response: unexpected payload")
	}

	records := make([]domain.Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			records = append(records, domain.Record(m))
		}
	}
	return records, nil
}

func decodeItem(body []byte) (domain.Record, error) {
	v, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("decode response: expected an object")
	}
	return domain.Record(m), nil
}
