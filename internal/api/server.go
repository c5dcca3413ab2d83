package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"polytrack/internal/tracker"
	"polytrack/pkg/db"
)

// Server exposes the tracker's read-only view and the archived order history.
type Server struct {
	Router    *gin.Engine
	Tracker   *tracker.Tracker
	DB        *db.Database
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime identity exposed by /health.
type SystemMeta struct {
	InstanceID string
	MarketSlug string
	Version    string
}

// NewServer builds the router with the full middleware stack.
func NewServer(tr *tracker.Tracker, database *db.Database, jwtSecret string, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Tracker:   tr,
		DB:        database,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.JWTSecret))
	{
		api.GET("/orders", s.getOrders)
		api.GET("/orders/:id", s.getOrder)
		api.GET("/exposure/:asset", s.getExposure)
		api.GET("/history/:asset", s.getHistory)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"instance": s.Meta.InstanceID,
		"market":   s.Meta.MarketSlug,
		"version":  s.Meta.Version,
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
