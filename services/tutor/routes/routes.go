// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumistudy/LumiTutor/services/tutor/handlers"
	"github.com/lumistudy/LumiTutor/services/tutor/middleware"
)

// SetupRoutes mounts every tutor endpoint on the router. The verifier
// guards the /v1 surface; health and metrics stay open for probes and
// scrapers.
func SetupRoutes(router *gin.Engine, deps *handlers.Deps, verifier middleware.TokenVerifier) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(verifier))
	{
		v1.GET("/tutor/ws", handlers.HandleTutorWebSocket(deps))
		v1.POST("/questions/ask", handlers.HandleAskQuestion(deps))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(deps))
			sessions.GET("/:sessionId", handlers.GetSession(deps))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps))
		}
	}
}
