// Package server exposes parsed runs, their LTS payloads, and the report
// summary over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/metrics"
	"github.com/signalnine/matbench/internal/report"
	"github.com/signalnine/matbench/internal/result"
)

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Debug enables gin's request logger.
	Debug bool
}

type Server struct {
	index  *Index
	router *gin.Engine
	logger *slog.Logger
}

// RunView is the listing entry of a run.
type RunView struct {
	Location string                `json:"location"`
	RunID    string                `json:"run_id,omitempty"`
	Settings result.ImportSettings `json:"settings"`
	ExitCode *int                  `json:"exit_code"`
	Start    *time.Time            `json:"start,omitempty"`
	End      *time.Time            `json:"end,omitempty"`
}

func New(index *Index, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("matbench"))
	if opts.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{index: index, router: router, logger: logging.OrDefault(opts.Logger)}

	router.GET("/healthz", s.health)
	v1 := router.Group("/v1")
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.GET("/runs/:id/lts", s.getPayload)
	v1.GET("/report", s.getReport)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("serving report data", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": s.index.Len()})
}

func view(r *result.Results) RunView {
	v := RunView{
		Location: r.Always.Location,
		Settings: r.Always.ImportSettings,
		ExitCode: r.Always.ExitCode,
	}
	if r.LTS != nil {
		v.RunID = r.LTS.Metadata.RunID
	}
	if se := r.Once.TestStartEnd; se != nil {
		start, end := se.Start, se.End
		v.Start, v.End = &start, &end
	}
	return v
}

func (s *Server) listRuns(c *gin.Context) {
	runs := s.index.Runs()
	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		views = append(views, view(r))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) lookup(c *gin.Context) (*result.Results, bool) {
	id := c.Param("id")
	r, ok := s.index.ByRunID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("run %s not found", id)})
	}
	return r, ok
}

func (s *Server) getRun(c *gin.Context) {
	if r, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, view(r))
	}
}

func (s *Server) getPayload(c *gin.Context) {
	if r, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, r.LTS)
	}
}

func (s *Server) getReport(c *gin.Context) {
	c.JSON(http.StatusOK, report.Summarize(s.index.Runs(), c.Query("group_by")))
}
