// Package remote exposes a backend.Backend over HTTP and provides the
// matching client. Values cross the wire as opaque bytes, so a kv.Store on
// the client side keeps encryption and expiry to itself.
package remote

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/httpx"
)

const (
	apiPrefix   = "/v1"
	entryPath   = "/entry"
	keysPath    = "/keys"
	swapPath    = "/swap"
	infoPath    = "/info"
	keyParam    = "key"
	octetStream = "application/octet-stream"

	defaultMaxValueBytes = 32 << 20
)

type swapRequest struct {
	Key  string `json:"key"`
	Prev []byte `json:"prev"`
	Next []byte `json:"next"`
}

type swapResponse struct {
	Swapped bool `json:"swapped"`
}

type keysResponse struct {
	Keys []string `json:"keys"`
}

type infoResponse struct {
	Swap bool `json:"swap"`
}

type ServerOption func(*handler)

// WithServerToken requires every request to carry token as a bearer
// credential.
func WithServerToken(token string) ServerOption {
	return func(h *handler) { h.token = token }
}

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxValueBytes caps the size of a PUT body.
func WithMaxValueBytes(n int64) ServerOption {
	return func(h *handler) {
		if n > 0 {
			h.maxValue = n
		}
	}
}

type handler struct {
	b        backend.Backend
	swapper  backend.Swapper
	token    string
	maxValue int64
	logger   *zap.Logger
}

// Register mounts the API for b on app. The swap route only exists when b
// implements backend.Swapper.
func Register(app *httpx.App, b backend.Backend, opts ...ServerOption) {
	h := &handler{b: b, maxValue: defaultMaxValueBytes, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.swapper, _ = b.(backend.Swapper)

	r := app.Group(apiPrefix, httpx.TokenMiddleware(h.token))
	r.GET(entryPath, h.get).
		HEAD(entryPath, h.head).
		PUT(entryPath, h.put).
		DELETE(entryPath, h.delete).
		GET(keysPath, h.keys).
		GET(infoPath, h.info)
	if h.swapper != nil {
		r.POST(swapPath, h.swap)
	}
}

func requireKey(c httpx.Context) (string, error) {
	q := c.QueryParams()
	if !q.Has(keyParam) {
		return "", httpx.HTTPError(httpx.StatusBadRequest, "missing key parameter")
	}
	return q.Get(keyParam), nil
}

func (h *handler) get(c httpx.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return err
	}
	v, err := h.b.Get(c.Request().Context(), key)
	if errors.Is(err, backend.ErrNotFound) {
		return httpx.HTTPError(httpx.StatusNotFound, "key not found")
	}
	if err != nil {
		return err
	}
	return c.Blob(httpx.StatusOK, octetStream, v)
}

func (h *handler) head(c httpx.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return err
	}
	ok, err := h.b.Contains(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if !ok {
		return c.NoContent(httpx.StatusNotFound)
	}
	return c.NoContent(httpx.StatusOK)
}

func (h *handler) put(c httpx.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return err
	}
	body := http.MaxBytesReader(c.Response(), c.Request().Body, h.maxValue)
	v, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return httpx.HTTPError(http.StatusRequestEntityTooLarge, "value too large")
		}
		return httpx.HTTPError(httpx.StatusBadRequest, "unreadable body")
	}
	if err := h.b.Set(c.Request().Context(), key, v); err != nil {
		return err
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *handler) delete(c httpx.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return err
	}
	if err := h.b.Delete(c.Request().Context(), key); err != nil {
		return err
	}
	return c.NoContent(httpx.StatusNoContent)
}

func (h *handler) keys(c httpx.Context) error {
	out := keysResponse{Keys: []string{}}
	err := h.b.Keys(c.Request().Context(), func(key string) error {
		out.Keys = append(out.Keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, out)
}

func (h *handler) swap(c httpx.Context) error {
	var req swapRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid swap request")
	}
	ok, err := h.swapper.CompareAndSwap(c.Request().Context(), req.Key, req.Prev, req.Next)
	if err != nil {
		return err
	}
	h.logger.Debug("compare and swap", zap.String("key", req.Key), zap.Bool("swapped", ok))
	return c.JSON(httpx.StatusOK, swapResponse{Swapped: ok})
}

func (h *handler) info(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, infoResponse{Swap: h.swapper != nil})
}
