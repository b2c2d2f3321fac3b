package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/graph"
	"github.com/mmdatafocus/shopledger_backend/store"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ravilushqa/otelgqlgen"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const apqPrefix = "apq:"

// Cache stores automatic persisted queries in redis so every instance shares them.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *Cache) Add(ctx context.Context, key string, value interface{}) {
	c.client.Set(ctx, apqPrefix+key, value, c.ttl)
}

func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	s, err := c.client.Get(ctx, apqPrefix+key).Result()
	if err != nil {
		return struct{}{}, false
	}
	return s, true
}

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded; using process environment")
	}
	port := config.ServerPort()
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	repo, err := store.OpenFromEnv(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "store"}).Fatal("opening ledger store: " + err.Error())
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.WithFields(logrus.Fields{"field": "store"}).Error("closing ledger store: " + err.Error())
		}
	}()

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithLocation(config.ShopLocation()),
		workflow.WithPhoneRegion(config.PhoneCountryCode()),
	}
	if os.Getenv("REDIS_ADDRESS") != "" && config.GetRedisDB() == nil {
		if _, err := config.ConnectRedisWithRetry(sigCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Warn("redis locks disabled: " + err.Error())
		}
	}
	if locker := config.GetRedisLock(); locker != nil {
		opts = append(opts, workflow.WithLocker(locker))
	}
	svc := workflow.NewService(repo, opts...)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx = utils.SetSourceInContext(ctx, "api")
		c.Request = c.Request.WithContext(ctx)
		c.Header("x-correlation-id", cid)
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins

	r.Use(cors.New(corsConfig))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		if client := config.GetRedisDB(); client != nil {
			limit := int64(600)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					limit = n
				}
			}
			windowSec := int64(60)
			if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					windowSec = n
				}
			}
			rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
			r.Use(rateLimiter.RateLimitMiddleware)
		} else {
			logger.WithFields(logrus.Fields{"field": "rateLimit"}).Warn("RATE_LIMIT_ENABLED=true but redis is not connected; rate limiting disabled")
		}
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	newLedgerAPI(svc, logger).register(r.Group("/api"))
	r.POST("/query", graph.LoaderMiddleware(svc), graphqlHandler(svc, logger))
	r.GET("/query/schema", func(c *gin.Context) {
		c.String(http.StatusOK, graph.SchemaSDL())
	})
	r.NoRoute(customNotFoundHandler)

	jobsCtx, cancelJobs := context.WithCancel(sigCtx)
	defer cancelJobs()

	if config.ReconcileOnStart() {
		result, err := svc.Reconcile(jobsCtx)
		if err != nil {
			config.LogError(logger, "server.go", "main", "Reconcile on start", nil, err)
		} else {
			logger.WithFields(logrus.Fields{
				"field":    "reconcile",
				"didSync":  result.DidSync,
				"repaired": len(result.RepairedOrderIds),
			}).Info("startup reconciliation finished")
		}
	}
	go runDailyJobs(jobsCtx, svc, logger, time.Hour)

	if topic := config.PubSubTopic(); topic != "" {
		events, stop := repo.Subscribe(256)
		defer stop()
		go workflow.NewEventDispatcher(workflow.PubSubPublisher(topic), logger).Run(jobsCtx, events)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"info":  "Server started",
		"store": config.LedgerStoreKind(),
	}).Info("listening on http://localhost:", port, "/api")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background jobs before draining so nothing new starts against the store.
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// runDailyJobs retries reconciliation and, when enabled, the nightly order reset on every
// tick. Both are no-ops once they have run for the current shop day.
func runDailyJobs(ctx context.Context, svc *workflow.Service, logger *logrus.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		jobCtx := utils.SetSourceInContext(ctx, "scheduler")
		if _, err := svc.Reconcile(jobCtx); err != nil {
			config.LogError(logger, "server.go", "runDailyJobs", "Reconcile", nil, err)
		}
		if !config.DailyResetEnabled() {
			continue
		}
		ran, removed, err := svc.RunDailyReset(jobCtx)
		if err != nil {
			config.LogError(logger, "server.go", "runDailyJobs", "RunDailyReset", nil, err)
			continue
		}
		if ran {
			logger.WithFields(logrus.Fields{
				"field":   "dailyReset",
				"removed": len(removed),
			}).Info("bread orders reset")
		}
	}
}

// Defining the Graphql handler
func graphqlHandler(svc *workflow.Service, logger *logrus.Logger) gin.HandlerFunc {
	h := handler.NewDefaultServer(graph.NewExecutableSchema(&graph.Resolver{
		Svc:    svc,
		Logger: logger,
	}))
	h.Use(otelgqlgen.Middleware())
	h.AddTransport(transport.POST{})
	// APQ cache is optional; without redis the server keeps its in-memory one.
	if client := config.GetRedisDB(); client != nil {
		h.Use(extension.AutomaticPersistedQuery{Cache: &Cache{client: client, ttl: 24 * time.Hour}})
	}
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed redis window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Fail open: the ledger stays usable when redis is down.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
