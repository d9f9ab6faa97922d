// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the service reads from the environment.
// Defaults follow the product tuning: 30 minute sessions, 50-character
// chunks every 50ms.
type Config struct {
	Port string

	// RedisAddr selects the redis drivers for sessions and rate limiting.
	// Empty means in-process memory drivers (single-instance mode).
	RedisAddr     string
	RedisPassword string

	SessionTTL time.Duration

	// CachePath is the badger directory for the answer cache. Empty means
	// the in-memory cache driver.
	CachePath string

	LLMBackendType string

	ChunkSize    int
	ChunkDelay   time.Duration
	CommandDelay time.Duration

	CORSOrigins []string

	// RateLimit is requests per user per window for ask/follow-up.
	// Zero disables rate limiting.
	RateLimit       int64
	RateLimitWindow time.Duration

	// AuthToken, when set, switches from the open dev verifier to the
	// shared-secret verifier.
	AuthToken string
}

func loadConfig() Config {
	cfg := Config{
		Port:            envString("TUTOR_PORT", "12310"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		SessionTTL:      time.Duration(envInt("SESSION_TTL_SECONDS", 1800)) * time.Second,
		CachePath:       os.Getenv("CACHE_PATH"),
		LLMBackendType:  envString("LLM_BACKEND_TYPE", "local"),
		ChunkSize:       envInt("CHUNK_SIZE", 50),
		ChunkDelay:      time.Duration(envInt("CHUNK_DELAY_MS", 50)) * time.Millisecond,
		CommandDelay:    time.Duration(envInt("COMMAND_DELAY_MS", 100)) * time.Millisecond,
		RateLimit:       int64(envInt("RATE_LIMIT_REQUESTS", 30)),
		RateLimitWindow: time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		AuthToken:       os.Getenv("TUTOR_AUTH_TOKEN"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, trimmed)
			}
		}
	}

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring unparseable env value", "key", key, "value", raw)
		return fallback
	}
	return v
}
