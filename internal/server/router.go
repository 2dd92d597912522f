package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/yungbote/macrolog-backend/internal/handlers"
  "github.com/yungbote/macrolog-backend/internal/middleware"
)

type RouterConfig struct {
  TelegramHandler *handlers.TelegramHandler
  ReportHandler   *handlers.ReportHandler
  AdminAuth       *middleware.AdminAuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  router.Use(cors.New(cors.Config{
    AllowOrigins:     []string{"http://localhost:3000"},
    AllowMethods:     []string{"GET", "POST", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  // Public
  router.GET("/healthcheck", handlers.HealthCheck)
  router.POST("/telegram/webhook", cfg.TelegramHandler.Webhook)

  // Admin
  admin := router.Group("/admin")
  admin.Use(cfg.AdminAuth.RequireAdmin())
  admin.GET("/users/:user_id/stats", cfg.ReportHandler.GetStats)
  admin.GET("/users/:user_id/history", cfg.ReportHandler.GetHistory)
  admin.GET("/users/:user_id/audit", cfg.ReportHandler.GetAuditTrail)

  return router
}
