package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clientcomm/core/internal/api"
	"github.com/clientcomm/core/internal/api/middleware"
	"github.com/clientcomm/core/internal/cli"
	"github.com/clientcomm/core/internal/config"
	"github.com/clientcomm/core/internal/database"
	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/logger"
	"github.com/clientcomm/core/internal/services"
	"github.com/clientcomm/core/internal/storage"
	"github.com/clientcomm/core/internal/transport"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wired services shared by the server and the CLI
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	logger   *zap.Logger
	provider *transport.Client
	queue    *services.JobQueue
	redis    *redis.Client

	logs          *services.LogService
	users         *services.UserService
	departments   *services.DepartmentService
	notifications *services.NotificationService
	delivery      *services.DeliveryService
	inbound       *services.InboundService
	relationships *services.RelationshipService
	messages      *services.MessageService
	clients       *services.ClientService
	court         *services.CourtReminderService
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "clientcomm")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := os.MkdirAll(cfg.GetMediaDir(), 0755); err != nil {
		zlog.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := database.Open(database.Options{
		Driver:   cfg.DatabaseDriver,
		Path:     cfg.DatabasePath,
		DSN:      cfg.DatabaseDSN,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		zlog.Fatal("Failed to initialize database", zap.Error(err))
	}

	a := newApp(cfg, db, zlog)

	if len(os.Args) > 1 {
		cli.Execute(cli.Deps{
			DB:          db,
			Config:      cfg,
			Users:       a.users,
			Departments: a.departments,
			Court:       a.court,
			Logs:        a.logs,
		})
		return
	}

	if err := a.serve(); err != nil {
		zlog.Fatal("Server stopped", zap.Error(err))
	}
}

func newApp(cfg *config.Config, db *gorm.DB, zlog *zap.Logger) *app {
	a := &app{cfg: cfg, db: db, logger: zlog}

	a.provider = transport.NewClient(transport.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		APIBaseURL:    cfg.TwilioAPIBaseURL,
		LookupBaseURL: cfg.TwilioLookupBaseURL,
		RateLimit:     cfg.TwilioRateLimit,
		Timeout:       time.Duration(cfg.TwilioTimeout) * time.Second,
	}, zlog.Named("transport"))

	var broadcaster services.Broadcaster = services.NewLogBroadcaster(zlog)
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		broadcaster = services.NewRedisBroadcaster(a.redis, zlog)
	}

	var mailer services.Mailer = services.NewLogMailer(zlog)
	if cfg.SMTPHost != "" {
		mailer = services.NewSMTPMailer(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	media := storage.NewStorage(storage.NewManager(cfg.GetMediaDir()))

	a.queue = services.NewJobQueue(db)
	a.logs = services.NewLogServiceWithLevel(db, zlog, cfg.LogLevel)
	a.users = services.NewUserService(db, a.provider)
	a.departments = services.NewDepartmentService(db)
	a.notifications = services.NewNotificationService(db, broadcaster, mailer, zlog, cfg.DeployBaseURL)
	a.delivery = services.NewDeliveryService(db, a.provider, a.queue, broadcaster, a.logs, zlog.Named("delivery"), services.DeliveryConfig{
		StatusCallbackURL: cfg.StatusCallbackURL(),
		RedactionDelay:    cfg.GetRedactionDelay(),
	})
	a.inbound = services.NewInboundService(db, a.provider, media, a.queue, broadcaster, a.notifications, a.logs, zlog.Named("inbound"))
	a.relationships = services.NewRelationshipService(db, broadcaster, a.notifications, media, a.logs, zlog.Named("relationships"))
	a.messages = services.NewMessageService(db, a.queue, broadcaster)
	a.clients = services.NewClientService(db, a.provider)
	a.court = services.NewCourtReminderService(db, a.queue, broadcaster, a.logs, zlog.Named("court"), cfg.Location())
	return a
}

func (a *app) serve() error {
	if a.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			a.logger.Warn("Redis unreachable, real-time events will be dropped", zap.String("addr", a.cfg.RedisAddr), zap.Error(err))
		}
		defer a.redis.Close()
	}

	dispatcher := services.NewDispatcher(a.queue, a.logger.Named("jobs"), a.cfg.Workers, a.cfg.GetPollInterval())
	dispatcher.Register(models.JobKindDeliverMessage, a.delivery.HandleDeliverJob)
	dispatcher.Register(models.JobKindRedactMessage, a.delivery.HandleRedactJob)
	dispatcher.Register(models.JobKindNotificationEmail, a.notifications.HandleEmailJob)
	dispatcher.Start()
	defer dispatcher.Stop()

	statusSync, err := services.NewStatusSyncScheduler(a.db, a.provider, a.inbound, a.logger.Named("status_sync"), a.cfg.StatusSyncCron)
	if err != nil {
		return err
	}
	statusSync.Start()
	defer statusSync.Stop()

	auth, err := middleware.NewAuthManager(a.cfg.DataDir, a.cfg.JWTSecret, middleware.DefaultTokenExpiry)
	if err != nil {
		return err
	}
	if a.cfg.JWTSecret == config.DefaultJWTSecret {
		a.logger.Warn("Using the default JWT secret; set CLIENTCOMM_JWT_SECRET")
	}
	if a.cfg.ValidateSignatures && a.cfg.TwilioAuthToken == "" {
		a.logger.Warn("Webhook signature validation is on but TWILIO_AUTH_TOKEN is empty; every webhook will be rejected")
	}

	router := api.SetupRouter(a.cfg, auth, api.Services{
		Users:         a.users,
		Logs:          a.logs,
		Inbound:       a.inbound,
		Relationships: a.relationships,
		Messages:      a.messages,
		Clients:       a.clients,
		Court:         a.court,
	}, a.logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + a.cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting ClientComm server",
			zap.String("port", a.cfg.APIPort),
			zap.String("data_dir", a.cfg.DataDir),
			zap.String("database_driver", a.cfg.DatabaseDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
