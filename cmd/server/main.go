package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/cache"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/config"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/handlers"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/handlers/ws"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/logger"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/middleware"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/notify"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/payment"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/storage"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()

	log, flush, err := logger.Install(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer flush()

	if envErr != nil {
		log.Info("no .env file found, using system environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := repository.InitDB(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(); err != nil {
		log.Warn("redis unavailable, running without cache and cross-instance rooms", zap.Error(err))
		redisCache = nil
	} else {
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}
	messageCache := cache.NewMessageCache(redisCache)

	// Repositories
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	readStateRepo := repository.NewReadStateRepository(db)
	milestoneRepo := repository.NewMilestoneRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Services
	conversationService := service.NewConversationService(convRepo)
	messageService := service.NewMessageService(messageRepo, conversationService, messageCache, cfg.MaxMessageLength)
	receiptService := service.NewReadReceiptService(messageRepo, readStateRepo, conversationService, messageCache)
	typingService := service.NewTypingService(nil, cfg.TypingIdleWindow)
	milestoneService := service.NewMilestoneService(milestoneRepo, outboxRepo, conversationService, messageCache, cfg.PaymentCurrency)
	conversationService.SetUnreadCounter(receiptService)

	var gateway payment.Gateway
	if cfg.PaymentsEnabled() {
		gateway = payment.NewRazorpayGateway(cfg.PaymentKeyID, cfg.PaymentKeySecret, cfg.PaymentBaseURL, cfg.PaymentTimeout)
		log.Info("payment gateway configured", zap.String("base_url", cfg.PaymentBaseURL))
	} else {
		log.Warn("payment gateway not configured, payment endpoints return 503")
	}
	paymentService := service.NewPaymentService(milestoneRepo, gateway, conversationService, milestoneService, cfg.PaymentTimeout)

	var objectStore *storage.S3Storage
	if s3cfg, err := storage.S3ConfigFrom(cfg); err != nil {
		log.Warn("attachment storage not configured", zap.Error(err))
	} else if st, err := storage.NewS3Storage(s3cfg); err != nil {
		log.Error("failed to initialize attachment storage", zap.Error(err))
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.EnsureBucket(ctx, s3cfg.Region); err != nil {
			log.Warn("attachment bucket check failed", zap.String("bucket", s3cfg.Bucket), zap.Error(err))
		}
		cancel()
		objectStore = st
		log.Info("attachment storage initialized", zap.String("bucket", s3cfg.Bucket))
	}

	var uploader handlers.Uploader
	var mediaStore handlers.ObjectReader
	if objectStore != nil {
		uploader = service.NewAttachmentService(objectStore, cfg.PublicAPIBaseURL, cfg.MaxAttachmentBytes)
		mediaStore = objectStore
	}

	// Realtime hub
	hubCfg := ws.DefaultHubConfig()
	hub := ws.NewHub(hubCfg, conversationService)
	hub.SetTyping(typingService)
	if redisCache != nil {
		instanceID := uuid.NewString()
		hub.SetPresence(cache.NewPresenceCache(redisCache, instanceID))
		hub.SetRelay(cache.NewRoomRelay(redisCache, instanceID))
	}
	messageService.SetBroadcaster(hub)
	messageService.SetTyping(typingService)
	receiptService.SetBroadcaster(hub)
	typingService.SetBroadcaster(hub)
	milestoneService.SetBroadcaster(hub)
	conversationService.SetRoomEvictor(hub)

	// Notifications
	var publisher notify.Publisher = notify.NewLogPublisher(log)
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(notify.NATSConfig{URL: cfg.NATSURL, Token: cfg.NATSToken}, log)
		if err != nil {
			log.Warn("nats unavailable, notifications are logged only", zap.Error(err))
		} else {
			defer nc.Close()
			publisher = nc
		}
	}
	dispatcher := notify.NewDispatcher(outboxRepo, publisher, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.RunRelay(ctx)
	go dispatcher.Run(ctx)
	go notify.RunOverdueSweeps(ctx, milestoneService, cfg.OverdueSweepInterval, log)

	// Handlers
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	conversationHandler := handlers.NewConversationHandler(conversationService)
	messageHandler := handlers.NewMessageHandler(messageService, receiptService, uploader)
	milestoneHandler := handlers.NewMilestoneHandler(milestoneService, paymentService)
	attachmentHandler := handlers.NewAttachmentHandler(uploader)
	mediaHandler := handlers.NewMediaHandler(mediaStore)
	wsHandler := handlers.NewWebSocketHandler(hub, ws.Services{
		Rooms:    conversationService,
		Messages: messageService,
		Receipts: receiptService,
		Typing:   typingService,
	}, hubCfg.SendBuffer)

	app := fiber.New(fiber.Config{
		AppName: "AgencyFlow Realtime",
		// Ten attachments at the per-file limit plus form overhead.
		BodyLimit: int(cfg.MaxAttachmentBytes)*service.MaxFilesPerUpload + 1024*1024,
	})

	app.Use(requestid.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(cfg.AllowedOrigins),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Supports-Gzip",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: cfg.AllowedOrigins != "",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"connections": hub.Count(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", middleware.OriginAllowed(cfg.AllowedOrigins), middleware.AuthRequired(verifier, false))

	elevated := middleware.RequireAnyRole(models.RoleAdmin, models.RoleManager)

	api.Post("/projects/:projectId/conversation", elevated, conversationHandler.Ensure)
	api.Get("/conversations", conversationHandler.List)
	api.Get("/conversations/unread", messageHandler.GetUnread)
	api.Get("/conversations/:id/messages", messageHandler.GetMessages)
	api.Post("/conversations/:id/messages", messageHandler.SendMessage)
	api.Post("/conversations/:id/read", messageHandler.MarkRead)
	api.Put("/conversations/:id/participants/:userId", elevated, conversationHandler.PutParticipant)
	api.Delete("/conversations/:id/participants/:userId", elevated, conversationHandler.DeleteParticipant)
	api.Patch("/messages/:id", messageHandler.EditMessage)
	api.Delete("/messages/:id", messageHandler.DeleteMessage)

	api.Post(
		"/attachments",
		limiter.New(limiter.Config{
			Max:        30,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if id, err := httpx.CurrentIdentity(c); err == nil {
					return "upload:" + strconv.FormatUint(uint64(id.UserID), 10)
				}
				return c.IP()
			},
		}),
		attachmentHandler.Upload,
	)
	api.Get("/media/*", mediaHandler.GetObject)

	api.Get("/projects/:projectId/milestones", milestoneHandler.List)
	api.Post("/projects/:projectId/milestones", elevated, milestoneHandler.Create)
	api.Patch("/milestones/:id/status", milestoneHandler.UpdateStatus)
	api.Post("/milestones/:id/orders", milestoneHandler.CreateOrder)
	api.Post("/milestones/:id/verify", milestoneHandler.VerifyPayment)
	api.Post("/milestones/:id/remind", elevated, milestoneHandler.RequestReminder)

	app.Use(
		"/ws",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(verifier, true),
		wsHandler.Upgrade,
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		hub.Shutdown()
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	if redisCache != nil {
		_ = redisCache.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func corsOrigins(allowed string) string {
	if allowed == "" {
		return "*"
	}
	return allowed
}
