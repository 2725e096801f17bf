package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/api/middleware"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

type Server struct {
	logger  *logger.Logger
	handler http.Handler
	server  *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database, publisher events.Publisher) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	store := tracking.NewGormStore(db.DB)

	// Initialize handlers
	productHandler := handlers.NewProductHandler(store, logger)
	channelHandler := handlers.NewChannelHandler(store, logger)
	issueHandler := handlers.NewIssueHandler(store, logger)
	runHandler := handlers.NewRunHandler(store, logger)
	syncHandler := handlers.NewSyncHandler(publisher, logger)
	healthHandler := handlers.NewHealthHandler(db)

	router.GET("/healthz", healthHandler.Check)

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Tracked products
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:id/:sku", productHandler.Get)
		}

		// Channels
		channels := v1.Group("/channels")
		{
			channels.GET("", channelHandler.List)
			channels.GET("/:id", channelHandler.Get)
		}

		// Issues
		issues := v1.Group("/issues")
		{
			issues.GET("", issueHandler.List)
			issues.GET("/:id", issueHandler.Get)
			issues.POST("/:id/resolve", issueHandler.Resolve)
		}

		// Runs
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.GET("/latest", runHandler.Latest)
			runs.GET("/:id", runHandler.Get)
		}

		v1.POST("/sync", syncHandler.Request)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	handler := c.Handler(router)
	return &Server{
		logger:  logger,
		handler: handler,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting server on " + s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// Handler returns the router wrapped in the CORS layer.
func (s *Server) Handler() http.Handler {
	return s.handler
}
