package bootstrap

import (
	"context"
	"fmt"

	"church-portal-be/internal/config"
	"church-portal-be/internal/constant"
	"church-portal-be/internal/handler"
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/mailer"
	"church-portal-be/internal/pkg/serverutils"
	"church-portal-be/internal/repository/implementation"
	"church-portal-be/internal/repository/unitofwork"
	"church-portal-be/internal/rpc"
	"church-portal-be/internal/service"
	"church-portal-be/internal/storage"
	"church-portal-be/internal/transfer"
	"church-portal-be/internal/websocket"

	pktNats "church-portal-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger logger.ILogger

	// Realtime gateway
	GatewayHandler *handler.GatewayHandler
	WebSocketHub   *websocket.Hub
	Registry       *rpc.Registry

	// REST
	NotificationHandler *handler.NotificationHandler
	AuthMiddleware      fiber.Handler

	// Background services (exposed for main.go to run)
	ReportWorker *service.ReportWorker
	Transfers    *transfer.Manager

	closers []func()
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.GatewayLogPath)

	c := &Container{Logger: sysLogger}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	sysLogger.Info("Bootstrap", "Object storage ready", map[string]interface{}{"backend": cfg.Storage.Backend})

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)

	// 2. In-process event bus for worker wake-ups
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 16},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Optional infrastructure
	var eventPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS publisher", map[string]interface{}{"error": err})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis, cluster fan-out disabled", map[string]interface{}{"error": err})
			_ = rdb.Close()
			rdb = nil
		} else {
			c.closers = append(c.closers, func() { _ = rdb.Close() })
		}
	}

	var emailService mailer.IEmailService
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
			sysLogger,
		)
	}

	// 4. WebSocket hub
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run(ctx)

	// 5. Services
	notifRepo := implementation.NewNotificationRepository(db)
	notifService := service.NewNotificationService(notifRepo, wsHub, eventPublisher, emailService, sysLogger) // Hub implements NotificationDelivery

	transfers := transfer.NewManager(
		transfer.OptionsFromConfig(cfg.Transfer),
		store,
		implementation.NewFileResourceRepository(db),
		sysLogger,
	)

	reportService := service.NewReportJobService(uowFactory, pubSub, constant.ReportWakeTopic, sysLogger)
	reportWorker := service.NewReportWorker(
		uowFactory,
		store,
		service.NewDocumentRenderer(),
		notifService,
		pubSub,
		service.ReportWorkerConfig{
			PollInterval:  cfg.Report.PollInterval,
			RenderTimeout: cfg.Report.RenderTimeout,
			WakeTopic:     constant.ReportWakeTopic,
		},
		sysLogger,
	)

	// 6. Action registry
	registry := rpc.NewRegistry()
	handler.NewSessionActions(verifier, wsLogger).Register(registry)
	handler.NewTransferActions(transfers).Register(registry)
	handler.NewReportActions(reportService).Register(registry)

	notifHandler := handler.NewNotificationHandler(notifService, wsHub, eventPublisher, sysLogger)
	notifHandler.RegisterActions(registry)

	dispatcher := rpc.NewDispatcher(registry, wsLogger)

	c.GatewayHandler = handler.NewGatewayHandler(
		wsHub,
		dispatcher,
		transfers,
		verifier,
		websocket.Limits{
			MaxMessageBytes: cfg.Transfer.ReadLimit(),
			MaxInFlight:     cfg.Transfer.MaxInFlightPerCon,
		},
		wsLogger,
	)
	c.WebSocketHub = wsHub
	c.Registry = registry
	c.NotificationHandler = notifHandler
	c.AuthMiddleware = serverutils.JwtMiddleware(verifier)
	c.ReportWorker = reportWorker
	c.Transfers = transfers

	sysLogger.Info("Bootstrap", "Container ready", map[string]interface{}{
		"actions": len(registry.Actions()),
		"nats":    eventPublisher != nil,
		"redis":   rdb != nil,
		"smtp":    emailService != nil,
	})
	return c, nil
}

// Close releases infrastructure clients in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
