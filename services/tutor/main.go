// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/lumistudy/LumiTutor/services/llm"
	"github.com/lumistudy/LumiTutor/services/tutor/answercache"
	"github.com/lumistudy/LumiTutor/services/tutor/generate"
	"github.com/lumistudy/LumiTutor/services/tutor/handlers"
	"github.com/lumistudy/LumiTutor/services/tutor/middleware"
	"github.com/lumistudy/LumiTutor/services/tutor/observability"
	"github.com/lumistudy/LumiTutor/services/tutor/ratelimit"
	"github.com/lumistudy/LumiTutor/services/tutor/routes"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
	"github.com/lumistudy/LumiTutor/services/tutor/streaming"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// initTracer wires the OTLP gRPC exporter. Returns nil cleanup when no
// collector endpoint is configured; tracing is optional for this service.
func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return nil, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("tutor-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	if cleanup != nil {
		defer cleanup(context.Background())
	}

	observability.InitMetrics()

	// --- Session store and rate limit counter ---
	var redisClient *redis.Client
	storeType := session.StoreTypeMemory
	counterType := ratelimit.CounterTypeMemory
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		storeType = session.StoreTypeRedis
		counterType = ratelimit.CounterTypeRedis
		slog.Info("Using redis drivers", "addr", cfg.RedisAddr)
	} else {
		slog.Info("REDIS_ADDR not set, using in-memory drivers (single-instance mode)")
	}

	store, err := session.NewStore(storeType, session.WithRedisClient(redisClient))
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}
	sessions := session.NewManager(store, cfg.SessionTTL)

	counter, err := ratelimit.NewCounter(counterType, ratelimit.WithRedisClient(redisClient))
	if err != nil {
		log.Fatalf("Failed to create rate limit counter: %v", err)
	}
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimit, cfg.RateLimitWindow)

	// --- Answer cache ---
	cacheType := answercache.GatewayTypeMemory
	if cfg.CachePath != "" {
		cacheType = answercache.GatewayTypeBadger
		slog.Info("Using badger answer cache", "path", cfg.CachePath)
	} else {
		slog.Info("CACHE_PATH not set, using in-memory answer cache")
	}
	cache, err := answercache.NewGateway(cacheType, cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open answer cache: %v", err)
	}
	defer cache.Close()

	// --- LLM backend ---
	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewClient(cfg.LLMBackendType)
	if err != nil {
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to local", "value", cfg.LLMBackendType)
		llmClient, err = llm.NewClient(llm.BackendLocal)
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	slog.Info("Using LLM backend", "backend", cfg.LLMBackendType)

	deps := &handlers.Deps{
		Sessions:  sessions,
		Cache:     cache,
		Generator: generate.NewGateway(llmClient, cfg.LLMBackendType),
		Coordinator: streaming.NewCoordinator(sessions, cache, streaming.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkDelay:   cfg.ChunkDelay,
			CommandDelay: cfg.CommandDelay,
		}),
		Limiter: limiter,
	}
	deps.Arbiter = streaming.NewArbiter(sessions, deps.Generator)

	var verifier middleware.TokenVerifier = middleware.NopVerifier{}
	if cfg.AuthToken != "" {
		verifier = middleware.StaticTokenVerifier{Token: cfg.AuthToken}
	} else {
		slog.Warn("TUTOR_AUTH_TOKEN not set, accepting all connections (dev mode)")
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("tutor-service"))
	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		router.Use(cors.New(corsCfg))
	}

	routes.SetupRoutes(router, deps, verifier)

	log.Println("Starting the tutor server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
