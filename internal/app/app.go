package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	_ "storefront/docs"
	"storefront/internal/authz"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/routes"
	"storefront/internal/services"
	"storefront/internal/utils"
)

// App owns every long-lived dependency of the server process.
type App struct {
	cfg *config.Config
	log *zap.SugaredLogger

	router     *gin.Engine
	otp        services.OTPService
	dispatcher *services.NotificationDispatcher
	closers    []func(context.Context) error
}

type stores struct {
	accounts repositories.AccountRepository
	codes    repositories.OneTimeCodeRepository
	ping     func(context.Context) error
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	switch a.cfg.Database.Driver {
	case "postgres":
		db, err := database.OpenPostgres(ctx, a.cfg.Database.DSN, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		return &stores{
			accounts: repositories.NewAccountRepository(db),
			codes:    repositories.NewOneTimeCodeRepository(db),
			ping:     func(ctx context.Context) error { return pingSQL(ctx, db) },
		}, nil
	case "mongo":
		client, db, err := database.OpenMongo(ctx, a.cfg.Database.MongoURI, a.cfg.Database.MongoDB, a.cfg.OTP.Retention)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		return &stores{
			accounts: repositories.NewMongoAccountRepository(db),
			codes:    repositories.NewMongoOneTimeCodeRepository(db),
			ping:     func(ctx context.Context) error { return pingMongo(ctx, client) },
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", a.cfg.Database.Driver)
	}
}

func pingSQL(ctx context.Context, db *sql.DB) error { return db.PingContext(ctx) }

func pingMongo(ctx context.Context, c *mongo.Client) error { return c.Ping(ctx, nil) }

// New connects the stores and wires services, handlers and routes.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = database.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	} else {
		log.Warn("[app] redis not configured: OTP throttle and cart are disabled")
	}

	// === Notifications ===
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
	)
	mobizonClient := utils.NewClientWithOptions(cfg.Mobizon.APIKey, cfg.Mobizon.SenderID, cfg.Mobizon.DryRun, log)
	smsService := services.NewSMSService(mobizonClient, log)
	telegram, err := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, log)
	if err != nil {
		// алерты не критичны для старта
		log.Warnf("[app] telegram disabled: %v", err)
	}
	var alerts services.AlertSender
	if telegram != nil {
		alerts = telegram
	}
	a.dispatcher = services.NewNotificationDispatcher(emailService, smsService, alerts, log)

	// === Services ===
	policies := authz.NewPolicies(cfg.Login.MaxFailures, cfg.Login.LockDuration)
	creds := services.NewCredentialService(st.accounts, policies, log)
	a.otp = services.NewOTPService(st.codes, services.OTPOptions{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Retention:   cfg.OTP.Retention,
	}, log)
	sessions := services.NewSessionService(services.SessionOptions{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		UserTTL:  cfg.JWT.UserTTL,
		AdminTTL: cfg.JWT.AdminTTL,
	})
	throttle := services.NoThrottle()
	if rdb != nil {
		throttle = services.NewRedisThrottle(rdb, services.ThrottleOptions{
			Cooldown:     cfg.OTP.Cooldown,
			Window:       cfg.OTP.Window,
			MaxPerWindow: cfg.OTP.MaxPerWindow,
		})
	}
	logins := services.NewLoginService(creds, a.otp, throttle, sessions, policies, a.dispatcher, log)
	passwords := services.NewPasswordResetService(creds, a.otp, logins, log)
	accountAdmin := services.NewAccountAdminService(st.accounts, log)

	if err := a.bootstrapAdmin(ctx, creds); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	// === Handlers ===
	h := routes.Handlers{
		Auth:  handlers.NewAuthHandler(logins, passwords, log),
		Admin: handlers.NewAdminHandler(accountAdmin, log),
	}
	if rdb != nil {
		h.Cart = handlers.NewCartHandler(services.NewCartService(repositories.NewCartRepository(rdb, 0)), log)
	}

	// === Gin ===
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(log))
	router.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Errorf("[http] panic: %v", rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, handlers.Response{Status: "error", Message: "Internal server error"})
	}))
	router.Use(corsMiddleware())

	router.GET("/healthz", healthz(st.ping, rdb))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(
		router,
		h,
		middleware.Authenticate(sessions, creds, log),
		middleware.RateLimit(cfg.Server.RatePerMinute),
	)
	a.router = router
	return a, nil
}

func (a *App) bootstrapAdmin(ctx context.Context, creds services.CredentialService) error {
	if a.cfg.Admin.Email == "" || a.cfg.Admin.Password == "" {
		return nil
	}
	created, err := creds.EnsureAdmin(ctx, services.NewAccount{
		Name:     a.cfg.Admin.Name,
		Email:    a.cfg.Admin.Email,
		Phone:    a.cfg.Admin.Phone,
		Password: a.cfg.Admin.Password,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		a.log.Infof("[app] admin account created email=%s", a.cfg.Admin.Email)
	}
	return nil
}

func (a *App) Handler() http.Handler { return a.router }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// waits for in-flight notifications.
func (a *App) Run(ctx context.Context) error {
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go a.otp.RunJanitor(janitorCtx, a.cfg.OTP.PurgeEvery)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("[app] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf("[app] http shutdown: %v", err)
	}
	stopJanitor()
	if err := a.dispatcher.Wait(shutdownCtx); err != nil {
		a.log.Warnf("[app] notifications still in flight: %v", err)
	}
	return a.Close(shutdownCtx)
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func healthz(ping func(context.Context) error, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"status": "ok"}
		code := http.StatusOK
		if err := ping(ctx); err != nil {
			status["status"], status["database"] = "degraded", "unavailable"
			code = http.StatusServiceUnavailable
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["status"], status["redis"] = "degraded", "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
