// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, route handlers and the realtime socket endpoint. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, redacted logging,
// panic recovery, metrics, CORS, security headers and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/config"
	"github.com/flamewall/realtime/internal/events"
	"github.com/flamewall/realtime/internal/http/handlers"
	"github.com/flamewall/realtime/internal/http/middleware"
	"github.com/flamewall/realtime/internal/realtime"
	"github.com/flamewall/realtime/internal/services"
)

// corsHeaders are the request headers browsers may send to the API.
var corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"}

// RegisterRoutes attaches all middleware and endpoints to r. bus receives the
// friendship events produced by the REST handlers; gw, when non-nil, serves
// the socket endpoint at cfg.Socket.Path.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (masks credentials, attaches the scoped logger)
//  4. Recovery
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// The API group adds BearerAuth, the per-user rate limiter and gzip. The
// socket route sits outside that group: it authenticates during the
// handshake and hijacks the connection, which gzip cannot wrap.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, bus events.Publisher, gw *realtime.Gateway, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{realtime.PluginKeyHeader},
		MaskQueryParams: []string{realtime.TokenQueryParam},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if gw != nil {
		path := cfg.Socket.Path
		if path == "" {
			path = "/socket"
		}
		r.GET(path, gw.ServeWS)
	}

	// Dependency injection: services <- db/bus
	h := handlers.New(
		&services.LinkingService{DB: db, TTL: cfg.LinkCodeTTL},
		&services.NotificationService{DB: db},
		&services.MessageService{DB: db},
		&services.FriendshipService{DB: db, Events: bus},
	)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.BearerAuth([]byte(cfg.Auth.JWTSecret)),
		rl.Handler(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		api.POST("/linking/generate-code", h.GenerateLinkCode)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		api.POST("/notifications/read-by-link", h.MarkNotificationsReadByLink)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)

		api.GET("/messages/conversation/:otherUserId", h.GetConversation)

		api.POST("/friendships/requests", h.RequestFriendship)
		api.POST("/friendships/requests/:id/accept", h.AcceptFriendship)
	}
}

// corsMiddleware returns the CORS chain. With no configured origins every
// origin is allowed without credentials; otherwise the allowlist is echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO even without an Origin header (health checks, curl)
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     []string{"GET", "POST", "OPTIONS"},
				AllowHeaders:     corsHeaders,
				ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body at maxBytes via http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
