package router

import (
	"github.com/searchktools/webby/core/http"
)

const notFoundBody = "Page not found."

// MissKey labels every request that matched no route. Keeping misses under one
// label bounds the set of labels to the registered routes plus this one.
const MissKey = "<miss>"

// Registry maps route keys to handlers by exact string match.
//
// Routes are registered during setup and only read while serving, so lookups
// take no lock. Registering after the engine starts is a data race.
type Registry struct {
	routes map[string]http.HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]http.HandlerFunc, 16),
	}
}

// Add registers handler under the key for method and path. A later
// registration for the same key replaces the earlier one.
func (r *Registry) Add(method, path string, handler http.HandlerFunc) {
	r.routes[RouteKey(method, path)] = handler
}

// GET registers a GET route.
func (r *Registry) GET(path string, handler http.HandlerFunc) {
	r.Add("GET", path, handler)
}

// Find returns the handler for method and path, or nil.
func (r *Registry) Find(method, path string) http.HandlerFunc {
	return r.routes[RouteKey(method, path)]
}

// Len returns the number of registered route keys.
func (r *Registry) Len() int {
	return len(r.routes)
}

// Dispatch invokes the matching handler, or NotFound on a miss.
// Its signature matches http.HandlerFunc so it can serve as a middleware's next.
func (r *Registry) Dispatch(req *http.Request, res *http.Response) {
	r.Route(req, res)
}

// Route is Dispatch that also reports what handled the request: the matched
// route key, or MissKey.
func (r *Registry) Route(req *http.Request, res *http.Response) string {
	key := RouteKey(req.Method, req.Path)
	if h, ok := r.routes[key]; ok {
		h(req, res)
		return key
	}
	NotFound(req, res)
	return MissKey
}

// NotFound is the fallback for every route miss.
func NotFound(_ *http.Request, res *http.Response) {
	res.Status(http.StatusNotFound)
	res.Set(http.HeaderContentType, "text/plain")
	res.SendString(notFoundBody)
}
