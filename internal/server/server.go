// Package server exposes the warmup engine's HTTP surface: a liveness
// probe and the Prometheus scrape endpoint. It deliberately carries no
// CRUD API — mailbox and plan state are managed by seeding the store
// directly, not through HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warmup-engine/internal/orchestrator"
)

// Server wraps an http.Server configured from config.ServerConfig.
type Server struct {
	httpServer *http.Server
}

// New builds a Server with /healthz and /metrics registered.
func New(addr string, readTimeout, writeTimeout time.Duration, db *gorm.DB, orch *orchestrator.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	router.GET("/healthz", healthCheck(db, orch))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// Start runs ListenAndServe in the background, logging a fatal-shaped
// error to the caller via the returned channel instead of calling
// logrus.Fatal directly, so callers can coordinate shutdown.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.httpServer.Addr).Info("server: listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func healthCheck(db *gorm.DB, orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "reason": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"jobs":   orch.Entries(),
		})
	}
}

func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
