package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type Response = resty.Response

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type Client struct {
	resty *resty.Client
}

func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rc := resty.New()
	if cfg.BaseURL != "" {
		rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	}
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if len(cfg.Headers) > 0 {
		rc.SetHeaders(cfg.Headers)
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		rc.SetAuthToken(token)
	}
	if cfg.Retries > 0 {
		rc.SetRetryCount(cfg.Retries)
	}
	return &Client{resty: rc}
}

type RequestOption func(*resty.Request)

func WithRequestHeaders(headers map[string]string) RequestOption {
	return func(r *resty.Request) {
		if len(headers) > 0 {
			r.SetHeaders(headers)
		}
	}
}

func WithQuery(params map[string]string) RequestOption {
	return func(r *resty.Request) {
		if len(params) > 0 {
			r.SetQueryParams(params)
		}
	}
}

// WithBearer overrides the client token for one request.
func WithBearer(token string) RequestOption {
	return func(r *resty.Request) {
		if token = strings.TrimSpace(token); token != "" {
			r.SetAuthToken(token)
		}
	}
}

// WithRawBody sends body unmodified as application/octet-stream.
func WithRawBody(body []byte) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader("Content-Type", "application/octet-stream")
		r.SetBody(body)
	}
}

func (c *Client) Get(ctx context.Context, path string, result any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, resty.MethodGet, path, nil, result, opts...)
}

func (c *Client) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, resty.MethodHead, path, nil, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, resty.MethodPost, path, body, result, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, resty.MethodPut, path, body, result, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, result any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, resty.MethodDelete, path, nil, result, opts...)
}

// Do executes one request. JSON bodies and results are encoded by resty;
// without a result the raw body stays available on the response.
func (c *Client) Do(ctx context.Context, method, path string, body any, result any, opts ...RequestOption) (*Response, error) {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return resp, err
	}
	if resp.IsError() {
		return resp, &StatusError{Code: resp.StatusCode(), Message: errorMessage(resp)}
	}
	return resp, nil
}

func errorMessage(resp *Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if strings.Contains(resp.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(resp.String())
}
