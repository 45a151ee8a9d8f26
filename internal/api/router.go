// Package api exposes the list import wizard over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ssherman/greatlist/internal/api/middleware"
	"github.com/ssherman/greatlist/internal/event"
	"github.com/ssherman/greatlist/internal/list"
	"github.com/ssherman/greatlist/internal/pipeline"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	ListService *list.Service
	Runner      *pipeline.Runner
	Bus         *event.Bus
	Logger      *slog.Logger
	BasePath    string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	lists    *list.Service
	runner   *pipeline.Runner
	bus      *event.Bus
	logger   *slog.Logger
	basePath string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		lists:    deps.ListService,
		runner:   deps.Runner,
		bus:      deps.Bus,
		logger:   deps.Logger,
		basePath: deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	dispatchRl := middleware.NewDispatchRateLimiter(time.Second, 10)
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	mux.HandleFunc("POST "+bp+"/api/v1/lists", r.handleCreateList)
	mux.HandleFunc("GET "+bp+"/api/v1/lists/{id}", r.handleGetList)
	mux.HandleFunc("PUT "+bp+"/api/v1/lists/{id}/source", r.handleUpdateSource)
	mux.HandleFunc("GET "+bp+"/api/v1/lists/{id}/items", r.handleListItems)
	mux.HandleFunc("PATCH "+bp+"/api/v1/lists/{id}/items/{itemId}", r.handleUpdateItem)

	// Wizard navigation
	mux.HandleFunc("POST "+bp+"/api/v1/lists/{id}/wizard/advance", r.handleAdvance)
	mux.HandleFunc("POST "+bp+"/api/v1/lists/{id}/wizard/back", r.handleBack)
	mux.HandleFunc("POST "+bp+"/api/v1/lists/{id}/wizard/restart", r.handleRestart)

	// Stage jobs
	mux.HandleFunc("GET "+bp+"/api/v1/lists/{id}/steps/{step}", r.handleStepStatus)
	mux.Handle("POST "+bp+"/api/v1/lists/{id}/steps/{step}/run",
		dispatchRl.Middleware(http.HandlerFunc(r.handleRunStep)))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}
