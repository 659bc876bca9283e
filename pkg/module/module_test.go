package module_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/JaimeStill/arbiter/pkg/module"
)

func TestNewValidPrefix(t *testing.T) {
	for _, prefix := range []string{"/api", "/admin", "/v1"} {
		t.Run(prefix, func(t *testing.T) {
			m := module.New(prefix, http.NewServeMux())
			if m.Prefix() != prefix {
				t.Errorf("prefix: got %s, want %s", m.Prefix(), prefix)
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
	tests := []struct {
		name    string
		pattern string
		path    string
		want    string
	}{
		{"sub path", "GET /requests", "/api/requests", "/requests"},
		{"root", "GET /", "/api", "/"},
		{"wildcard key", "GET /artifacts/{key...}", "/api/artifacts/actions/r1/a1.json", "/artifacts/actions/r1/a1.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received string
			mux := http.NewServeMux()
			mux.HandleFunc(tt.pattern, func(w http.ResponseWriter, r *http.Request) {
				received = r.URL.Path
			})

			req := httptest.NewRequest("GET", tt.path, nil)
			module.New("/api", mux).Serve(httptest.NewRecorder(), req)

			if received != tt.want {
				t.Errorf("inner path: got %s, want %s", received, tt.want)
			}
			if req.URL.Path != tt.path {
				t.Errorf("original request mutated: %s", req.URL.Path)
			}
		})
	}
}

func TestModuleMiddlewareOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Order", "handler")
	})

	m := module.New("/api", mux)
	for _, name := range []string{"first", "second"} {
		m.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Add("X-Order", name)
				next.ServeHTTP(w, r)
			})
		})
	}

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest("GET", "/api", nil))

	got := rec.Header().Values("X-Order")
	want := []string{"first", "second", "handler"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}
}

func TestModuleChainBuiltOnce(t *testing.T) {
	var builds atomic.Int32
	m := module.New("/api", http.NewServeMux())
	m.Use(func(next http.Handler) http.Handler {
		builds.Add(1)
		return next
	})

	for range 3 {
		m.Serve(httptest.NewRecorder(), httptest.NewRequest("GET", "/api", nil))
	}

	if got := builds.Load(); got != 1 {
		t.Errorf("middleware chain built %d times, want 1", got)
	}
}

func TestRouterDispatch(t *testing.T) {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /requests", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("api"))
	})

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("admin"))
	})

	router := module.NewRouter()
	router.Mount(module.New("/api", apiMux))
	router.Mount(module.New("/admin", adminMux))
	router.HandleNative("GET /other", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("native"))
	})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"api module", "/api/requests", http.StatusOK, "api"},
		{"trailing slash", "/api/requests/", http.StatusOK, "api"},
		{"admin module", "/admin", http.StatusOK, "admin"},
		{"native fallback", "/other", http.StatusOK, "native"},
		{"prefix lookalike", "/apix/requests", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body: got %s, want %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouterProbes(t *testing.T) {
	var ready atomic.Bool
	router := module.NewRouter()
	router.Probes(ready.Load, "1.2.3")

	probe := func(path string) (int, map[string]string) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		var body map[string]string
		json.NewDecoder(rec.Body).Decode(&body)
		return rec.Code, body
	}

	if code, body := probe("/healthz"); code != http.StatusOK || body["version"] != "1.2.3" {
		t.Errorf("healthz = %d %v", code, body)
	}
	if code, body := probe("/readyz"); code != http.StatusServiceUnavailable || body["status"] != "not ready" {
		t.Errorf("readyz before ready = %d %v", code, body)
	}

	ready.Store(true)
	if code, body := probe("/readyz"); code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("readyz after ready = %d %v", code, body)
	}
}
