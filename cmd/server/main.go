package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/trafficpulse/livemap/internal/cache"
	"github.com/trafficpulse/livemap/internal/channel"
	delivery "github.com/trafficpulse/livemap/internal/delivery/http"
	"github.com/trafficpulse/livemap/internal/dispatch"
	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/geo"
	"github.com/trafficpulse/livemap/internal/logger"
	"github.com/trafficpulse/livemap/internal/metrics"
	"github.com/trafficpulse/livemap/internal/overlay"
	"github.com/trafficpulse/livemap/internal/service"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	l := logger.Setup()
	if envErr != nil {
		l.Info("env_file_missing", "detail", "using system environment")
	}

	cfg := loadConfig()

	// Report cache: in-process LRU, optionally backed by Redis
	rdb := cache.OpenRedisFromEnv()
	if rdb == nil {
		l.Info("redis_disabled")
	} else {
		defer rdb.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			l.Warn("redis_ping_failed", "error", err)
		} else {
			l.Info("redis_connected")
		}
		cancel()
	}
	cacheTTL := time.Duration(cfg.CacheTTLSec) * time.Second
	reports := cache.NewReports(cache.NewMemory(cfg.CacheCapacity, cacheTTL), rdb, cacheTTL, l)

	// Dependency Injection: Services
	geoClient := geo.NewClient(geo.Config{
		BaseURL: cfg.AmapBaseURL,
		Key:     cfg.AmapKey,
	}, l)

	overlays := overlay.NewManager(overlay.NewLogRenderer(l), l)

	engine := service.NewEngine(service.Config{
		RefreshInterval: time.Duration(cfg.RefreshSec) * time.Second,
	}, geoClient, geoClient, overlays, reports, l)

	predict := service.NewPredictionClient(cfg.MLServiceURL, l)

	dispatcher := dispatch.NewDispatcher(l)
	registerConsumers(dispatcher, l)

	ch := channel.New(channel.Config{
		Endpoint:             cfg.EventSourceURL,
		HeartbeatInterval:    time.Duration(cfg.HeartbeatSec) * time.Second,
		ReconnectInterval:    time.Duration(cfg.ReconnectSec) * time.Second,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, channel.NewWebSocket(), dispatcher, l)

	if cfg.EventSourceURL != "" {
		if err := ch.Connect(); err != nil {
			l.Error("channel_connect_failed", "error", err)
		}
	} else {
		l.Warn("event_source_disabled", "reason", "EVENT_SOURCE_URL not set")
	}

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "LiveMap API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	delivery.SetupRoutes(app, delivery.NewHandler(engine, ch, predict, reports))

	// Prometheus scrape endpoint on its own listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		l.Info("metrics_listening", "port", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			l.Error("metrics_server_failed", "error", err)
		}
	}()

	go func() {
		l.Info("server_listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			l.Error("server_failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting_down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		l.Error("shutdown_forced", "error", err)
	}
	ch.Close()
	engine.ClearAll()
	l.Info("server_exited")
}

// registerConsumers stands in for the map UI: pushed frames are summarized to
// the log so operators can watch the stream without a rendering surface.
func registerConsumers(d *dispatch.Dispatcher, l *slog.Logger) {
	d.On(domain.EventTrafficUpdate, func(ev domain.InboundEvent) {
		var points []domain.TrafficUpdatePoint
		if err := ev.DecodeData(&points); err != nil {
			l.Warn("traffic_update_unreadable", "error", err)
			return
		}
		anomalies := 0
		for _, p := range points {
			if p.IsAnomaly {
				anomalies++
			}
		}
		l.Info("traffic_update", "points", len(points), "anomalies", anomalies)
	})
	d.On(domain.EventTrafficUpdateEvents, func(ev domain.InboundEvent) {
		l.Info("traffic_update_with_events", "bytes", len(ev.Raw))
	})
	d.On(domain.EventNewData, func(ev domain.InboundEvent) {
		l.Info("new_data", "bytes", len(ev.Raw))
	})
	d.On(domain.EventTrainingCompleted, func(domain.InboundEvent) {
		l.Info("model_training_completed")
	})
	d.On(domain.EventTrainingFailed, func(ev domain.InboundEvent) {
		l.Warn("model_training_failed", "frame", string(ev.Raw))
	})
}

type Config struct {
	Port        string
	MetricsPort string

	EventSourceURL string
	AmapBaseURL    string
	AmapKey        string
	MLServiceURL   string

	HeartbeatSec         int
	ReconnectSec         int
	MaxReconnectAttempts int
	RefreshSec           int
	CacheTTLSec          int
	CacheCapacity        int
}

func loadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9091"),

		EventSourceURL: getEnv("EVENT_SOURCE_URL", ""),
		AmapBaseURL:    getEnv("AMAP_BASE_URL", ""),
		AmapKey:        getEnv("AMAP_API_KEY", ""),
		MLServiceURL:   getEnv("ML_SERVICE_URL", "http://localhost:8000"),

		HeartbeatSec:         getEnvInt("HEARTBEAT_INTERVAL_SEC", 30),
		ReconnectSec:         getEnvInt("RECONNECT_INTERVAL_SEC", 5),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		RefreshSec:           getEnvInt("REFRESH_INTERVAL_SEC", 120),
		CacheTTLSec:          getEnvInt("CACHE_TTL_SEC", 300),
		CacheCapacity:        getEnvInt("CACHE_CAPACITY", 1000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
