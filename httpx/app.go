// Package httpx wraps Echo for serving and resty for calling HTTP APIs, so
// the rest of the module never imports either directly.
package httpx

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Context = echo.Context

type HandlerFunc = echo.HandlerFunc

type MiddlewareFunc = echo.MiddlewareFunc

// App holds the route table of a Server.
type App struct{ e *echo.Echo }

func newApp() *App { return &App{e: echo.New()} }

func (a *App) Use(mw ...MiddlewareFunc) { a.e.Use(mw...) }

// Group returns a Router whose routes share prefix and mw.
func (a *App) Group(prefix string, mw ...MiddlewareFunc) *Router {
	return &Router{g: a.e.Group(prefix, mw...)}
}

func (a *App) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.GET(path, h, mw...)
}

func (a *App) HEAD(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.HEAD(path, h, mw...)
}

func (a *App) POST(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.POST(path, h, mw...)
}

func (a *App) PUT(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.PUT(path, h, mw...)
}

func (a *App) DELETE(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.DELETE(path, h, mw...)
}

// Mount serves a plain net/http handler, such as promhttp, under path.
func (a *App) Mount(path string, h http.Handler) {
	a.e.GET(path, echo.WrapHandler(h))
}

// HTTPError builds an error that the server renders as {"error": message}.
func HTTPError(code int, message any) error { return echo.NewHTTPError(code, message) }
