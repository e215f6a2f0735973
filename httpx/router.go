package httpx

import "github.com/labstack/echo/v4"

// Router registers routes under a shared prefix. Methods chain.
type Router struct {
	g *echo.Group
}

func (r *Router) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.add(echo.GET, path, h, mw...)
}

func (r *Router) HEAD(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.add(echo.HEAD, path, h, mw...)
}

func (r *Router) POST(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.add(echo.POST, path, h, mw...)
}

func (r *Router) PUT(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.add(echo.PUT, path, h, mw...)
}

func (r *Router) DELETE(path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	return r.add(echo.DELETE, path, h, mw...)
}

func (r *Router) add(method, path string, h HandlerFunc, mw ...MiddlewareFunc) *Router {
	if r.g == nil || h == nil {
		return r
	}
	r.g.Add(method, path, h, mw...)
	return r
}
