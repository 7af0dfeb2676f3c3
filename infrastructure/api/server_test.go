package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/helixml/codeframe"
	apimiddleware "github.com/helixml/codeframe/infrastructure/api/middleware"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mountedServer returns a Server carrying every codeframe route, as
// ListenAndServe builds it.
func mountedServer(t *testing.T) Server {
	t.Helper()
	client, err := codeframe.New(
		codeframe.WithSQLite(filepath.Join(t.TempDir(), "server.db")),
		codeframe.WithSkipProviderValidation(),
		codeframe.WithoutWorker(),
		codeframe.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	server := NewServer(":0", quietLogger())
	NewAPIServer(client, "test").mountRoutes(server.Router())
	return server
}

func TestNewServer_Defaults(t *testing.T) {
	server := NewServer(":8080", nil)

	if server.Addr() != ":8080" {
		t.Errorf("Addr() = %v, want :8080", server.Addr())
	}
	if server.Router() == nil {
		t.Fatal("Router() returned nil")
	}
	if server.WriteTimeout() != defaultWriteTimeout {
		t.Errorf("WriteTimeout() = %v, want %v", server.WriteTimeout(), defaultWriteTimeout)
	}
}

func TestServer_WithWriteTimeout(t *testing.T) {
	base := NewServer(":0", quietLogger())
	longer := base.WithWriteTimeout(20 * time.Minute)

	if longer.WriteTimeout() != 20*time.Minute {
		t.Errorf("WriteTimeout() = %v, want 20m", longer.WriteTimeout())
	}
	if base.WriteTimeout() != defaultWriteTimeout {
		t.Errorf("base WriteTimeout() changed to %v", base.WriteTimeout())
	}
	if got := base.WithWriteTimeout(0).WriteTimeout(); got != defaultWriteTimeout {
		t.Errorf("zero WriteTimeout() = %v, want default", got)
	}
}

func TestServer_HealthThroughMiddleware(t *testing.T) {
	server := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(apimiddleware.CorrelationHeader, "corr-7")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %v, want %v", w.Code, http.StatusOK)
	}
	if got := w.Header().Get(apimiddleware.CorrelationHeader); got != "corr-7" {
		t.Errorf("correlation header = %q, want corr-7", got)
	}
	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
}

func TestServer_GenerationsRoutes(t *testing.T) {
	server := mountedServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"missing generation", http.MethodGet, "/api/v1/generations/77", "", http.StatusNotFound},
		{"start without category", http.MethodPost, "/api/v1/generations", `{}`, http.StatusBadRequest},
		{"malformed id", http.MethodGet, "/api/v1/generations/abc", "", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v2/generations", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			server.Router().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status code = %v, want %v; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	server := NewServer(":0", quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}
