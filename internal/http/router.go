// Package httpapi wires the HTTP transport (Gin) to the chat history
// services, middleware and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, caller identity, access
// logging, panic recovery, metrics, CORS, security headers, compression,
// idempotency and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-chat-history/internal/config"
	_ "github.com/tbourn/go-chat-history/internal/docs" // swagger spec
	"github.com/tbourn/go-chat-history/internal/http/handlers"
	"github.com/tbourn/go-chat-history/internal/http/middleware"
	"github.com/tbourn/go-chat-history/internal/services"
)

// Services carries the application services the routes are bound to.
// Idempotency may be nil, which disables replay of fork and duplicate.
type Services struct {
	Chats       handlers.ChatService
	Projects    handlers.ProjectService
	Users       handlers.UserService
	Completions handlers.CompletionService
	Idempotency *services.IdempotencyService
}

// maxBodyBytes caps request bodies. Chats carry full message lists.
const maxBodyBytes = 8 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the caller (token, cookie, X-User-ID)
//  4. AccessLog: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Rate limiter (per user/IP); idempotent replays bypass it per route
//  9. CORS and security headers
//  10. Gzip, except for the streamed completion route
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())

	var ensure func(context.Context, string) error
	if svc.Users != nil {
		ensure = func(ctx context.Context, id string) error {
			_, _, err := svc.Users.Ensure(ctx, id)
			return err
		}
	}
	r.Use(middleware.Identity(middleware.IdentityOptions{
		JWTSecret: cfg.Auth.JWTSecret,
		Cookie:    cfg.Auth.UserCookie,
		Ensure:    ensure,
	}))

	r.Use(middleware.AccessLog(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", handlers.HeaderStreamError}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}
	// Streams must reach the client as they are produced.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{"^" + regexp.QuoteMeta(apiBase) + "/chat$"}),
	))

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

	var recorder handlers.IdempotencyRecorder
	idem := func(c *gin.Context) { c.Next() }
	if svc.Idempotency != nil {
		recorder = svc.Idempotency
		idem = middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, svc.Idempotency.Lookup)
	}
	h := handlers.New(svc.Chats, svc.Projects, svc.Users, svc.Completions, recorder)

	// The idempotency check runs before the limiter so replays are free.
	limited := rl.Handler()

	api := groupWithPrefix(r, apiBase)
	{
		// Users
		api.POST("/users", limited, h.RegisterUser)
		api.GET("/users/:id", limited, h.GetUser)

		// Projects
		api.GET("/projects", limited, h.ListProjects)
		api.POST("/projects", limited, h.CreateProject)
		api.GET("/projects/:projectId", limited, h.GetProject)
		api.PUT("/projects/:projectId", limited, h.RenameProject)
		api.DELETE("/projects/:projectId", limited, h.DeleteProject)

		// Chats
		api.GET("/chats", limited, h.ListChats)
		api.POST("/chats", limited, h.CreateChat)
		api.GET("/chats/:id", limited, h.GetChat)
		api.PUT("/chats/:id", limited, h.SaveChat)
		api.DELETE("/chats/:id", limited, h.DeleteChat)
		api.PUT("/chats/:id/description", limited, h.UpdateDescription)
		api.POST("/chats/:id/fork", idem, limited, h.ForkChat)
		api.POST("/chats/:id/duplicate", idem, limited, h.DuplicateChat)

		// Streamed completion
		api.POST("/chat", limited, h.Chat)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
