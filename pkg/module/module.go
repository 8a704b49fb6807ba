// Package module mounts self-contained HTTP surfaces under a single path
// segment, each with its own middleware chain.
package module

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/sentio/pkg/middleware"
)

// Module serves an inner router below a one-segment prefix such as "/api".
// The inner router sees paths with the prefix removed.
type Module struct {
	prefix string
	router http.Handler
	chain  middleware.Chain
}

// New panics when prefix is empty, lacks a leading slash, or has more than
// one segment.
func New(prefix string, router http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{prefix: prefix, router: router}
}

// Prefix returns the mount point.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends mw to the module's chain. Register middleware before serving.
func (m *Module) Use(mw middleware.Func) {
	m.chain = append(m.chain, mw)
}

// Handler returns the inner router behind the module's middleware.
func (m *Module) Handler() http.Handler {
	return m.chain.Then(m.router)
}

func (m *Module) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	inner := req.Clone(req.Context())
	inner.URL.Path = strings.TrimPrefix(req.URL.Path, m.prefix)
	if inner.URL.Path == "" {
		inner.URL.Path = "/"
	}
	inner.URL.RawPath = ""
	m.Handler().ServeHTTP(w, inner)
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case prefix[0] != '/':
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Count(prefix, "/") != 1:
		return fmt.Errorf("module prefix must be a single segment: %s", prefix)
	}
	return nil
}
