// Package middleware provides the HTTP middleware used by sentio modules.
package middleware

import "net/http"

// Func wraps a handler with cross-cutting behavior.
type Func func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first entry sees the request first.
type Chain []Func

// Then wraps h with every middleware in the chain.
func (c Chain) Then(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}
