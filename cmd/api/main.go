package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/stepup-helpdesk/internal/api/http"
	"github.com/spec-kit/stepup-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/config"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/observability"
	"github.com/spec-kit/stepup-helpdesk/internal/persistence"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
	"github.com/spec-kit/stepup-helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	sessionRepo := repository.NewVerificationRepository(pool)
	grantRepo := repository.NewGrantRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	tokenCache := persistence.NewTokenCache(redis.ClientHandle())
	pseudonymizer := auth.NewPseudonymizer(cfg.Auth.PseudonymSecret)

	auditService := service.NewAuditService(auditRepo, pseudonymizer)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Audit:    auditService,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		ChatRepo:   chatRepo,
		Audit:      auditService,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	})
	verificationService := service.NewVerificationService(*cfg, service.VerificationDependencies{
		TicketRepo:   ticketRepo,
		SessionRepo:  sessionRepo,
		QuestionRepo: questionRepo,
		Audit:        auditService,
		TokenCache:   tokenCache,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
	})
	gateService := service.NewGateService(*cfg, service.GateDependencies{
		TicketRepo:  ticketRepo,
		SessionRepo: sessionRepo,
		GrantRepo:   grantRepo,
		Audit:       auditService,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})

	notificationWorker := worker.NewNotificationWorker(chatRepo, logger)
	notificationWorker.Register(dispatcher)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AgentTickets:   handlers.NewAgentTicketsHandler(ticketService, verificationService, gateService),
		Verify:         handlers.NewVerifyHandler(verificationService),
		Audit:          handlers.NewAuditHandler(auditService, ticketService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
