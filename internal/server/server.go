package server

import (
	"net/http"
	"time"

	"anoa.com/notifyhub/internal/middleware"
	notifHttp "anoa.com/notifyhub/internal/modules/notification/delivery/http"
	notifWs "anoa.com/notifyhub/internal/modules/notification/delivery/ws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	AllowedOrigins []string
	JWTSecret      string

	Notifications *notifHttp.NotificationHandler
	Push          *notifWs.Handler
}

type Server struct {
	engine *gin.Engine
}

func NewServer(opts Options) *Server {
	router := gin.New()

	setupCORS(router, opts.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger("/metrics", "/healthz"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(opts.JWTSecret)

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		notifications := protected.Group("/notifications")
		notifications.GET("/ws", opts.Push.Connect)
		opts.Notifications.RegisterRoutes(notifications)
	}

	return &Server{engine: router}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer builds the listener for addr. WriteTimeout is left unset so
// upgraded websocket connections are not cut off.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
