package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/httpx"
)

// ErrSwapUnsupported is returned by CompareAndSwap when the server's backend
// has no conditional write.
var ErrSwapUnsupported = errors.New("remote: server does not support compare-and-swap")

// Client is a backend.Backend served by Register on another process.
type Client struct {
	http *httpx.Client
}

func New(baseURL string, opts ...httpx.ClientOption) *Client {
	opts = append([]httpx.ClientOption{httpx.WithBaseURL(baseURL)}, opts...)
	return &Client{http: httpx.NewClient(opts...)}
}

// Dial connects to baseURL and returns a backend whose capabilities match
// the server's: the result implements backend.Swapper only when the remote
// backend does.
func Dial(ctx context.Context, baseURL string, opts ...httpx.ClientOption) (backend.Backend, error) {
	c := New(baseURL, opts...)
	var info infoResponse
	if _, err := c.http.Get(ctx, apiPrefix+infoPath, &info); err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", baseURL, err)
	}
	if !info.Swap {
		return plain{c}, nil
	}
	return c, nil
}

// plain exposes only the Backend methods of a Client.
type plain struct{ backend.Backend }

func keyQuery(key string) httpx.RequestOption {
	return httpx.WithQuery(map[string]string{keyParam: key})
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.http.Get(ctx, apiPrefix+entryPath, nil, keyQuery(key))
	if httpx.IsStatus(err, httpx.StatusNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{}, resp.Body()...), nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	_, err := c.http.Put(ctx, apiPrefix+entryPath, nil, nil, keyQuery(key), httpx.WithRawBody(value))
	return err
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.http.Delete(ctx, apiPrefix+entryPath, nil, keyQuery(key))
	return err
}

func (c *Client) Contains(ctx context.Context, key string) (bool, error) {
	_, err := c.http.Head(ctx, apiPrefix+entryPath, keyQuery(key))
	if httpx.IsStatus(err, httpx.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Keys fetches the full key list before calling fn.
func (c *Client) Keys(ctx context.Context, fn func(key string) error) error {
	var out keysResponse
	if _, err := c.http.Get(ctx, apiPrefix+keysPath, &out); err != nil {
		return err
	}
	for _, k := range out.Keys {
		if err := fn(k); err != nil {
			return backend.StopIteration(err)
		}
	}
	return nil
}

func (c *Client) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	var out swapResponse
	_, err := c.http.Post(ctx, apiPrefix+swapPath, swapRequest{Key: key, Prev: prev, Next: next}, &out)
	if httpx.IsStatus(err, httpx.StatusNotFound) {
		return false, ErrSwapUnsupported
	}
	if err != nil {
		return false, err
	}
	return out.Swapped, nil
}
