// Package api provides the optional status server for a running
// optimization: run state, generation statistics and the current Pareto
// front, over REST and a websocket stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// RunInfo is the static description of the run the server reports.
type RunInfo struct {
	Symbols        []string  `json:"symbols"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Scoring        [2]string `json:"scoring"`
	ResultsPath    string    `json:"results_path"`
	StartedAt      time.Time `json:"started_at"`
}

// Config contains server configuration
type Config struct {
	Host     string
	Port     int
	Logbook  *optimize.Logbook
	Archive  *optimize.ParetoArchive
	Template *optimize.StrategyConfig
	Info     RunInfo
	Logger   zerolog.Logger
}

// Server represents the status API server
type Server struct {
	router   *gin.Engine
	addr     string
	server   *http.Server
	hub      *Hub
	logbook  *optimize.Logbook
	archive  *optimize.ParetoArchive
	template *optimize.StrategyConfig
	info     RunInfo
	log      zerolog.Logger
	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer creates a new status API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(config.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	server := &Server{
		router:   router,
		addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		hub:      NewHub(config.Logger),
		logbook:  config.Logbook,
		archive:  config.Archive,
		template: config.Template,
		info:     config.Info,
		log:      config.Logger.With().Str("component", "api_server").Logger(),
		quit:     make(chan struct{}),
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and the stats stream. It blocks until
// Stop is called or the listener fails.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.Run()
	go s.watchLogbook()

	s.log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("Stopping API server")

	s.quitOnce.Do(func() { close(s.quit) })

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// watchLogbook broadcasts newly recorded generation statistics to
// websocket clients.
func (s *Server) watchLogbook() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if s.logbook == nil {
				continue
			}
			entries := s.logbook.Entries()
			for _, entry := range entries[seen:] {
				if err := s.hub.Broadcast(MessageTypeGenerationStats, entry); err != nil {
					s.log.Error().Err(err).Msg("Failed to broadcast generation stats")
				}
			}
			seen = len(entries)
		}
	}
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
