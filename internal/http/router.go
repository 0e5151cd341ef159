// Package httpapi wires the Gin transport to the SPK services. It owns the
// middleware order, the CORS and security posture, and the route table under
// the configured API base path.
package httpapi

import (
	"context"
	"errors"
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

	"github.com/tbourn/spk-service/docs"
	"github.com/tbourn/spk-service/internal/config"
	"github.com/tbourn/spk-service/internal/http/handlers"
	"github.com/tbourn/spk-service/internal/http/middleware"
	"github.com/tbourn/spk-service/internal/services"
	"github.com/tbourn/spk-service/internal/spknum"
)

// maxBodyBytes caps request bodies. Order payloads are small.
const maxBodyBytes = 64 << 10

// Deps are the services behind the routes. Idempotency and Ready are optional.
type Deps struct {
	Format      spknum.Format
	Generator   handlers.Generator
	Verifier    handlers.Verifier
	Orders      handlers.OrderCreator
	Counters    handlers.CounterLister
	Idempotency middleware.IdempotencyLookup
	// Ready backs /ready; nil reports ready unconditionally.
	Ready func(context.Context) error
	// Now overrides the clock of handlers and the idempotency lookup.
	Now func() time.Time
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (header masking, ctx logger)
//  4. Recovery
//  5. Body size limit
//  6. gzip
//  7. Metrics
//  8. Idempotency validator, before rate limiting so replays bypass it
//  9. Rate limiter (general bucket; /spk/generate adds its own)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) error {
	if err := handlers.RegisterValidators(deps.Format); err != nil {
		return err
	}
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LoggerOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{Now: deps.Now}, deps.Idempotency))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClient()).Handler())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readyHandler(deps.Ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Generator, deps.Verifier, deps.Orders, deps.Counters)
	if deps.Now != nil {
		h.Now = deps.Now
	}

	generate := []gin.HandlerFunc{h.GenerateSPK}
	if cfg.GenerateRateRPS > 0 {
		genRL := middleware.NewRateLimiter(cfg.GenerateRateRPS, cfg.GenerateRateBurst, middleware.KeyByClient())
		generate = append([]gin.HandlerFunc{genRL.Handler()}, generate...)
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/spk/generate", generate...)
		api.GET("/spk/verify", h.VerifySPK)
		api.GET("/spk/counters", h.ListCounters)
		api.POST("/orders", h.CreateOrder)
	}
	return nil
}

// IdempotencyLookup adapts the idempotency store to the middleware lookup.
func IdempotencyLookup(store services.IdempotencyRepo) middleware.IdempotencyLookup {
	if store == nil {
		return nil
	}
	return func(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
		_, err := store.Get(ctx, clientID, key, now)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey, middleware.HeaderClientID},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After", handlers.HeaderReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

func readyHandler(ready func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
				handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "storage unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody caps request bodies with http.MaxBytesReader; oversized bodies
// fail on read.
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
