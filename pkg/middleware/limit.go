package middleware

import "net/http"

// LimitBody caps request bodies at n bytes. Reads past the cap fail, which
// JSON decoding reports as a bad request.
func LimitBody(n int64) Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
