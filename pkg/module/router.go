package module

import (
	"fmt"
	"net/http"
	"strings"
)

// Router sends each request to the module owning its first path segment.
// Anything else goes to a plain ServeMux, which carries the operational
// endpoints.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers fn on the fallback mux.
func (r *Router) HandleNative(pattern string, fn http.HandlerFunc) {
	r.native.HandleFunc(pattern, fn)
}

// Handle registers h on the fallback mux.
func (r *Router) Handle(pattern string, h http.Handler) {
	r.native.Handle(pattern, h)
}

// Mount panics if another module already owns m's prefix.
func (r *Router) Mount(m *Module) {
	if _, taken := r.modules[m.prefix]; taken {
		panic(fmt.Errorf("module prefix already mounted: %s", m.prefix))
	}
	r.modules[m.prefix] = m
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if p := req.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
		req = req.Clone(req.Context())
		req.URL.Path = strings.TrimRight(p, "/")
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
	}

	if m, ok := r.modules[firstSegment(req.URL.Path)]; ok {
		m.ServeHTTP(w, req)
		return
	}
	r.native.ServeHTTP(w, req)
}

func firstSegment(path string) string {
	rest := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return "/" + rest
}
