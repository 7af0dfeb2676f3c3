package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/codeframe"
	apimiddleware "github.com/helixml/codeframe/infrastructure/api/middleware"
	v1 "github.com/helixml/codeframe/infrastructure/api/v1"
	"github.com/helixml/codeframe/internal/config"
	mcpinternal "github.com/helixml/codeframe/internal/mcp"
)

// APIServer provides an HTTP API backed by a codeframe Client.
type APIServer struct {
	client       *codeframe.Client
	version      string
	timeout      time.Duration
	startTimeout time.Duration
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given codeframe Client.
func NewAPIServer(client *codeframe.Client, version string) *APIServer {
	return &APIServer{
		client:       client,
		version:      version,
		timeout:      config.DefaultRequestTimeout,
		startTimeout: config.DefaultGenerationStartTimeout,
		logger:       client.Logger(),
	}
}

// WithRequestTimeout sets the per-request timeout for /api/v1 routes.
func (a *APIServer) WithRequestTimeout(d time.Duration) *APIServer {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// WithStartTimeout sets the deadline of POST /api/v1/generations, which
// runs embedding and clustering before it answers.
func (a *APIServer) WithStartTimeout(d time.Duration) *APIServer {
	if d > 0 {
		a.startTimeout = d
	}
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	categoriesRouter := v1.NewCategoriesRouter(c)
	generationsRouter := v1.NewGenerationsRouter(c).WithTimeouts(a.timeout, a.startTimeout)

	router.Get("/health", a.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(chimiddleware.Timeout(a.timeout)).Mount("/categories", categoriesRouter.Routes())
		// Generations set their own deadlines; starting one outlasts the
		// request timeout.
		r.Mount("/generations", generationsRouter.Routes())
	})

	// MCP streams responses, so it stays outside the timeout group.
	mcpSrv := mcpinternal.NewServer(c.Generations, c.Hierarchy, a.version, a.logger)
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

func (a *APIServer) health(w http.ResponseWriter, req *http.Request) {
	if err := a.client.Health(req.Context()); err != nil {
		a.logger.WarnContext(req.Context(), "health check failed", slog.Any("error", err))
		apimiddleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unhealthy",
			Version: a.version,
			Error:   err.Error(),
		})
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: a.version})
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger).WithWriteTimeout(max(a.timeout, a.startTimeout) + writeTimeoutGrace)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
