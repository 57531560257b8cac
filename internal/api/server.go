// Package api exposes chain loading, presets and the saved chain library
// over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chain-keeper/internal/logger"
	"chain-keeper/pkg/library"
	"chain-keeper/pkg/loader"
	"chain-keeper/pkg/preset"
)

// Options configures a Server. Library may be nil, in which case the
// /api/chains storage routes are not registered. A Library that publishes
// changes (see library.Bus) also gets a /api/chains/stream route.
type Options struct {
	Loader      *loader.Loader
	Presets     *preset.Catalog
	Library     library.Store
	Log         *logger.Logger
	AppVersion  string
	CORSOrigins []string
}

// Server is the HTTP API server.
type Server struct {
	loader     *loader.Loader
	presets    *preset.Catalog
	library    library.Store
	log        *logger.Logger
	appVersion string
	now        func() time.Time
	router     *gin.Engine
}

// New creates a new Server.
func New(opts Options) *Server {
	s := &Server{
		loader:     opts.Loader,
		presets:    opts.Presets,
		library:    opts.Library,
		log:        opts.Log,
		appVersion: opts.AppVersion,
		now:        time.Now,
		router:     gin.New(),
	}
	if s.loader == nil {
		s.loader = loader.New(nil, s.log)
	}
	if s.presets == nil {
		s.presets = preset.Bundled()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}

	s.router.Use(gin.Recovery(), requestLogger(s.log))
	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins: opts.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// System
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")

	// Presets
	api.GET("/presets", s.handlePresetList)
	api.GET("/presets/:name", s.handlePresetGet)

	// Stateless document operations
	api.POST("/chains/load", s.handleChainLoad)
	api.POST("/chains/migrate", s.handleChainMigrate)
	api.POST("/chains/checksum", s.handleChainChecksum)

	// Library
	if s.library != nil {
		api.POST("/chains", s.handleChainSave)
		api.GET("/chains", s.handleChainList)
		api.GET("/chains/verify", s.handleChainVerify)
		if _, ok := s.library.(changeFeed); ok {
			api.GET("/chains/stream", s.handleChainStream)
		}
		api.GET("/chains/:id", s.handleChainGet)
		api.DELETE("/chains/:id", s.handleChainDelete)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":   "ok",
		"version":  s.appVersion,
		"schema":   s.loader.Engine().Current(),
		"presets":  s.presets.Len(),
		"failures": len(s.presets.Failures()),
		"library":  s.library != nil,
	}
	if s.library != nil {
		n, err := s.library.Count(c.Request.Context())
		if err != nil {
			s.log.Error("count chains", "error", err)
			writeError(c, http.StatusServiceUnavailable, "library unavailable")
			return
		}
		body["chains"] = n
	}
	c.JSON(http.StatusOK, body)
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
