// Package api wires labtrace's HTTP surface: ingestion upload, the chat
// SSE stream, admin review endpoints, and the ambient health/metrics
// endpoints, on top of Echo v5.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labtrace/labtrace/pkg/admin"
	"github.com/labtrace/labtrace/pkg/chat"
	"github.com/labtrace/labtrace/pkg/config"
	"github.com/labtrace/labtrace/pkg/ingest"
	"github.com/labtrace/labtrace/pkg/insight"
	"github.com/labtrace/labtrace/pkg/jobs"
	"github.com/labtrace/labtrace/pkg/schema"
	"github.com/labtrace/labtrace/pkg/store"
	"github.com/labtrace/labtrace/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	store   *store.Store // RLS-respecting, request-scoped via WithUserScope
	reports *store.ReportStore // RLS-bypass, used only to resolve a report's owning patient before an ownership check
	pipe    *ingest.Pipeline
	jobs    *jobs.Manager
	orch    *chat.Orchestrator
	light   *insight.Generator
	admin   *admin.Service
	schema  *schema.Snapshotter
}

// NewServer builds the Echo app and registers every route. Every
// dependency is required at construction time — this service has no
// optional subsystems to wire in incrementally.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	userStore *store.UserStore,
	adminReports *store.ReportStore,
	pipe *ingest.Pipeline,
	jobManager *jobs.Manager,
	orch *chat.Orchestrator,
	lightGen *insight.Generator,
	adminSvc *admin.Service,
	snapshots *schema.Snapshotter,
) *Server {
	e := echo.New()

	s := &Server{
		echo:    e,
		cfg:     cfg,
		store:   st,
		reports: adminReports,
		pipe:    pipe,
		jobs:    jobManager,
		orch:    orch,
		light:   lightGen,
		admin:   adminSvc,
		schema:  snapshots,
	}

	s.setupRoutes(userStore)
	return s
}

func (s *Server) setupRoutes(userStore *store.UserStore) {
	s.echo.Use(middleware.BodyLimit(int(s.cfg.MaxUploadBytes) + 1<<20))
	s.echo.Use(securityHeaders())

	s.echo.GET("/healthz", s.healthHandler)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.Use(authMiddleware(userStore))

	v1.GET("/patients", s.listPatientsHandler)

	v1.POST("/reports", s.uploadReportHandler)
	v1.POST("/reports/:id/reprocess", s.reprocessReportHandler)
	v1.GET("/jobs/:id", s.getJobHandler)

	v1.POST("/chat/sessions", s.createChatSessionHandler)
	v1.POST("/chat/sessions/:id/messages", s.postChatMessageHandler)
	v1.GET("/chat/sessions/:id/stream", s.streamChatHandler)
	v1.GET("/patients/:id/insight", s.onboardingInsightHandler)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(requireAdmin)
	adminGroup.GET("/pending-analytes", s.listPendingAnalytesHandler)
	adminGroup.POST("/pending-analytes/:id/approve", s.approvePendingAnalyteHandler)
	adminGroup.POST("/pending-analytes/:id/reject", s.rejectPendingAnalyteHandler)
	adminGroup.GET("/unmapped-results", s.listUnmappedResultsHandler)
	adminGroup.POST("/unmapped-results/:id/resolve", s.resolveUnmappedResultHandler)
}

// healthResponse is the ambient liveness/readiness payload: DB
// reachability plus the current schema snapshot id.
type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	DatabaseOK     bool   `json:"database_ok"`
	SchemaSnapshot string `json:"schema_snapshot,omitempty"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: version.Full(), DatabaseOK: true}

	if err := s.store.Pool.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.DatabaseOK = false
		return c.JSON(http.StatusServiceUnavailable, resp)
	}

	if manifest, err := s.schema.Current(ctx); err == nil {
		resp.SchemaSnapshot = manifest.ID[:12]
	}

	return c.JSON(http.StatusOK, resp)
}

// Start runs the HTTP server until the process is signaled to stop.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
