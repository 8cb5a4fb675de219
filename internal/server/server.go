package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iieono/make-via-backend-sub000/internal/api"
	"github.com/iieono/make-via-backend-sub000/internal/build"
	"github.com/iieono/make-via-backend-sub000/internal/config"
	"github.com/iieono/make-via-backend-sub000/internal/store"
)

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
}

type Params struct {
	fx.In

	Config       *config.AppConfig
	Logger       *zap.Logger
	BuildHandler *build.Handler
	Artifacts    store.Store
	Registry     *prom.Registry
}

func NewServer(p Params) *Server {
	if os.Getenv("APP_ENV") == EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestLogger(p.Logger), gin.Recovery())

	router.GET(api.Health, healthCheck)
	router.GET(api.Metrics, gin.WrapH(promhttp.HandlerFor(p.Registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true})))

	// The local store backend serves its own signed downloads. S3 presigned
	// URLs bypass this service entirely.
	if local, ok := p.Artifacts.(*store.LocalStore); ok {
		router.GET(api.Download, downloadHandler(local, p.Logger))
	}

	v1 := router.Group(api.V1Prefix)
	v1.Use(UserIdentity())
	p.BuildHandler.RegisterRoutes(v1)

	addr := fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port)
	server := &Server{
		config: p.Config,
		log:    p.Logger,
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	return server
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func (s *Server) Stop() {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", zap.Error(err))
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "makevia-build-service",
	})
}

func downloadHandler(local *store.LocalStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		storedPath, name, err := local.VerifyToken(c.Param("token"))
		if err != nil {
			log.Warn("rejected download token", zap.Error(err))
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid or expired download token",
			})
			return
		}

		filePath, err := local.FilePath(storedPath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "artifact no longer available",
			})
			return
		}
		if _, err := os.Stat(filePath); err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "artifact no longer available",
			})
			return
		}

		c.FileAttachment(filePath, name)
	}
}

func serverConfigToField(config *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddString("store_backend", config.Store.Backend)
		enc.AddInt("build_workers", config.Build.Workers)
		enc.AddInt("build_queue_size", config.Build.QueueSize)
		return nil
	})
}
