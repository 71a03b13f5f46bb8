// Package status serves health, job state, metrics and the inventory summary over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/rewired-gh/buybackd/internal/report"
	"github.com/rewired-gh/buybackd/internal/scheduler"
)

// Jobs reports scheduler state.
type Jobs interface {
	Status() []scheduler.JobStatus
}

// AssetSource reads the stored inventory.
type AssetSource interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	CountAssets(ctx context.Context) (int, error)
}

// Server is the status HTTP server.
type Server struct {
	srv *http.Server
}

// NewRouter builds the routes. metrics may be nil.
func NewRouter(jobs Jobs, assets AssetSource, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		st := jobs.Status()
		healthy := true
		for _, j := range st {
			if j.ConsecutiveFailures > 0 {
				healthy = false
			}
		}
		stored, err := assets.CountAssets(c.Request.Context())
		if err != nil {
			logger.Error("Failed to count assets: %v", err)
			healthy = false
		}
		code, text := http.StatusOK, "ok"
		if !healthy {
			code, text = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(code, gin.H{"status": text, "jobs": st, "assets_stored": stored})
	})

	r.GET("/assets/overview", func(c *gin.Context) {
		list, err := assets.ListAssets(c.Request.Context())
		if err != nil {
			logger.Error("Failed to list assets: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assets"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"assets":   len(list),
			"overview": report.ComputeOverview(list),
			"systems":  report.BySystem(list),
		})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	return r
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		logger.Info("Status server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
