package module_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/sentio/pkg/module"
)

func TestNewValidPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"api", "/api"},
		{"metrics", "/metrics"},
		{"docs", "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := module.New(tt.prefix, http.NewServeMux())
			if m.Prefix() != tt.prefix {
				t.Errorf("prefix: got %s, want %s", m.Prefix(), tt.prefix)
			}
		})
	}
}

func TestNewInvalidPrefixPanics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"empty", ""},
		{"no leading slash", "api"},
		{"nested path", "/api/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic for invalid prefix")
				}
			}()
			module.New(tt.prefix, http.NewServeMux())
		})
	}
}

func TestServePrefixStripping(t *testing.T) {
	mux := http.NewServeMux()

	var receivedPath string
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	m := module.New("/api", mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/items", nil)
	m.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if receivedPath != "/items" {
		t.Errorf("inner path: got %s, want /items", receivedPath)
	}
}

func TestServeRootPath(t *testing.T) {
	mux := http.NewServeMux()

	var receivedPath string
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	m := module.New("/api", mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api", nil)
	m.ServeHTTP(rec, req)

	if receivedPath != "/" {
		t.Errorf("root path: got %s, want /", receivedPath)
	}
}

func TestModuleMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m := module.New("/api", mux)

	var middlewareCalled bool
	m.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middlewareCalled = true
			next.ServeHTTP(w, r)
		})
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api", nil)
	m.ServeHTTP(rec, req)

	if !middlewareCalled {
		t.Error("module middleware should have been called")
	}
}

func TestRouterDispatch(t *testing.T) {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("api"))
	})

	reviewMux := http.NewServeMux()
	reviewMux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("review"))
	})

	router := module.NewRouter()
	router.Mount(module.New("/api", apiMux))
	router.Mount(module.New("/review", reviewMux))

	tests := []struct {
		name     string
		path     string
		wantBody string
	}{
		{"api module", "/api/health", "api"},
		{"review module", "/review", "review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", tt.path, nil)
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status: got %d, want 200", rec.Code)
			}
			if body := rec.Body.String(); body != tt.wantBody {
				t.Errorf("body: got %s, want %s", body, tt.wantBody)
			}
		})
	}
}

func TestRouterNativeFallback(t *testing.T) {
	router := module.NewRouter()
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "ok" {
		t.Errorf("body: got %s, want ok", body)
	}
}

func TestRouterTrailingSlashNormalization(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router := module.NewRouter()
	router.Mount(module.New("/api", mux))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/items/", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("trailing slash normalization: got %d, want 200", rec.Code)
	}
}

func TestRouterHandle(t *testing.T) {
	router := module.NewRouter()
	router.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if body := rec.Body.String(); body != "# metrics" {
		t.Errorf("body: got %s", body)
	}
}

func TestRouterDuplicateMountPanics(t *testing.T) {
	router := module.NewRouter()
	router.Mount(module.New("/api", http.NewServeMux()))

	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate prefix")
		}
	}()
	router.Mount(module.New("/api", http.NewServeMux()))
}

func TestServeLeavesCallerRequestIntact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /staging/pending", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router := module.NewRouter()
	router.Mount(module.New("/api", mux))

	req := httptest.NewRequest("GET", "/api/staging/pending/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if req.URL.Path != "/api/staging/pending/" {
		t.Errorf("caller path mutated: %s", req.URL.Path)
	}
}
