// Package api serves a small read-only HTTP API over the contact log:
// recent contacts, counters, and a websocket feed of live contacts.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/db"
	intnet "github.com/lure-project/lure/internal/network"
	"github.com/lure-project/lure/internal/notify"
)

// ContactReader is the part of the contact store the API reads from.
type ContactReader interface {
	Recent(ctx context.Context, limit int) ([]db.Contact, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
}

// StatsSource reports notification pipeline counters.
type StatsSource interface {
	Stats() notify.Stats
}

// Server is the REST API server.
type Server struct {
	cfg       config.APIConfig
	feed      *Feed
	startedAt time.Time
	logger    zerolog.Logger

	// Optional; nil when the matching feature is disabled.
	contacts ContactReader
	pipeline StatsSource

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates an API server publishing feed at /api/contacts/live.
func NewServer(cfg config.APIConfig, feed *Feed) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if feed == nil {
		feed = NewFeed(cfg.AllowedOrigins)
	}

	s := &Server{
		cfg:       cfg,
		feed:      feed,
		startedAt: time.Now(),
		logger:    log.With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// SetDependencies injects the optional data sources. Either may be nil.
func (s *Server) SetDependencies(contacts ContactReader, pipeline StatsSource) {
	s.contacts = contacts
	s.pipeline = pipeline
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("API server shutdown")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop closes the live feed and gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.feed.Close()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
	}

	contacts := router.Group("/api/contacts")
	{
		contacts.GET("", s.handleContacts)
		contacts.GET("/live", s.feed.ServeWS)
	}
	router.GET("/api/stats", s.handleStats)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router
}
