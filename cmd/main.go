package main

import (
  "context"
  "fmt"
  "os"

  "github.com/joho/godotenv"

  "github.com/yungbote/macrolog-backend/internal/cache"
  "github.com/yungbote/macrolog-backend/internal/clients/fdc"
  "github.com/yungbote/macrolog-backend/internal/clients/telegram"
  "github.com/yungbote/macrolog-backend/internal/clients/vision"
  "github.com/yungbote/macrolog-backend/internal/db"
  "github.com/yungbote/macrolog-backend/internal/handlers"
  "github.com/yungbote/macrolog-backend/internal/logger"
  "github.com/yungbote/macrolog-backend/internal/middleware"
  "github.com/yungbote/macrolog-backend/internal/observability"
  "github.com/yungbote/macrolog-backend/internal/repos"
  "github.com/yungbote/macrolog-backend/internal/server"
  "github.com/yungbote/macrolog-backend/internal/services"
  "github.com/yungbote/macrolog-backend/internal/utils"
)

func main() {
  _ = godotenv.Load()

  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Tracing (no-op unless OTEL_ENABLED is set)
  if shutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
    ServiceName: "macrolog-backend",
    Environment: os.Getenv("APP_ENV"),
    Version:     os.Getenv("APP_VERSION"),
  }); shutdown != nil {
    defer func() {
      if err := shutdown(context.Background()); err != nil {
        log.Warn("otel shutdown failed", "error", err)
      }
    }()
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Cache
  var lookupCache cache.Cache
  redisCache, err := cache.NewRedis(log)
  if err != nil {
    log.Warn("Redis unavailable, using in-memory cache", "error", err)
    lookupCache = cache.NewMemory()
  } else {
    lookupCache = redisCache
  }

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userSettingsRepo := repos.NewUserSettingsRepo(thePG, log)
  photoRepo := repos.NewPhotoRepo(thePG, log)
  sessionRepo := repos.NewSessionRepo(thePG, log)
  libraryRepo := repos.NewLibraryRepo(thePG, log)
  mealLogRepo := repos.NewMealLogRepo(thePG, log)
  auditRepo := repos.NewAuditRepo(thePG, log)

  // External clients
  tgClient, err := telegram.NewClient(log)
  if err != nil {
    log.Error("Could not init TelegramClient", "error", err)
    os.Exit(1)
  }
  visionClient, err := vision.NewClient(log)
  if err != nil {
    log.Error("Could not init VisionClient", "error", err)
    os.Exit(1)
  }
  fdcClient, err := fdc.NewClient(log)
  if err != nil {
    log.Error("Could not init FDCClient", "error", err)
    os.Exit(1)
  }

  // Services
  log.Info("Setting up Services from main...")
  userService := services.NewUserService(thePG, log, userRepo, userSettingsRepo)
  settingsService := services.NewUserSettingsService(log, userSettingsRepo)
  auditService := services.NewAuditService(log, auditRepo)
  libraryService := services.NewLibraryService(log, libraryRepo)
  nutritionService := services.NewNutritionService(log, fdcClient, lookupCache)
  resolverService := services.NewResolverService(log, services.LoadResolverPolicy(log), libraryRepo, nutritionService)
  visionService := services.NewVisionService(log, visionClient)
  mealLogService := services.NewMealLogService(thePG, log, mealLogRepo, libraryService, auditService)
  statsService := services.NewStatsService(log, mealLogRepo, settingsService)
  sessionService := services.NewSessionService(
    thePG,
    log,
    sessionRepo,
    photoRepo,
    visionService,
    resolverService,
    nutritionService,
    libraryService,
    mealLogService,
    services.NewUserLocker(),
  )

  sweeper := services.NewSessionSweeper(log, sessionRepo, photoRepo)
  sweeper.Start(context.Background())

  // Handlers
  log.Info("Setting up handlers from main...")
  telegramHandler := handlers.NewTelegramHandler(log, tgClient, userService, sessionService, statsService, settingsService, photoRepo)
  reportHandler := handlers.NewReportHandler(log, userService, statsService, auditService)

  // Middleware
  adminAuth := middleware.NewAdminAuthMiddleware(log)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    TelegramHandler: telegramHandler,
    ReportHandler:   reportHandler,
    AdminAuth:       adminAuth,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
