package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/handlers"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/middleware"
	"github.com/swapsoft/pwdbudget/internal/repository"
	"github.com/swapsoft/pwdbudget/internal/service"
	"github.com/swapsoft/pwdbudget/internal/sms"
	"github.com/swapsoft/pwdbudget/internal/tenant"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Log.Level).Warn("Unknown log level, using info")
	}
	logger.WithFields(logrus.Fields{
		"otp_store": cfg.OTP.Store,
		"scheduler": cfg.Scheduler.Enabled,
	}).Info("Configuration loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	offices, err := tenant.NewRegistry(ctx, descriptors(cfg), tenant.PgxConnector, logger,
		tenant.WithConnectTimeout(cfg.Database.ConnectTimeout),
		tenant.WithConnectHook(m.SetOfficeConnected),
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize office registry")
	}
	defer offices.Close()
	logger.WithField("offices", offices.Keys()).Info("Office registry initialized")

	sessions, closeStore, err := initSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP session store")
	}
	defer closeStore()

	var sender service.Sender
	if cfg.SMS.APIKey != "" {
		sender = sms.NewClient(&cfg.SMS, logger)
	} else {
		logger.Warn("SMS_API_KEY not set, messages are logged instead of sent")
		sender = sms.NewLogSender(logger)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(offices, logger)
	workRepo := repository.NewWorkRepository(offices, logger)
	headRepo := repository.NewHeadRepository(offices, logger)

	// Initialize services
	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	otpService := service.NewOTPService(userRepo, sessions, sender, jwtService, &cfg.OTP, m, logger)
	notificationService, err := service.NewNotificationService(workRepo, sender, &cfg.Notification, m, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize notification service")
	}
	reportService := service.NewReportService(headRepo, m, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:           handlers.NewAuthHandlers(otpService, logger),
		Notifications:  handlers.NewNotificationHandlers(notificationService, logger),
		Reports:        handlers.NewReportHandlers(reportService, logger),
		Offices:        offices,
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService, logger),
		RateLimiter:    rateLimiter(cfg, logger),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	if cfg.OTP.SweepInterval > 0 {
		go otpService.RunSweeper(ctx, cfg.OTP.SweepInterval)
	}

	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = service.NewScheduler(notificationService, &cfg.Scheduler, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize scheduler")
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Scheduled run still in progress at shutdown")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func descriptors(cfg *config.Config) []tenant.Descriptor {
	out := make([]tenant.Descriptor, 0, len(cfg.Database.Offices))
	for _, o := range cfg.Database.Offices {
		out = append(out, tenant.Descriptor{
			Key:      o.Key,
			Host:     o.Host,
			Port:     o.Port,
			Database: o.Database,
			User:     o.User,
			Password: o.Password,
			SSLMode:  o.SSLMode,
			MaxConns: o.MaxConns,
		})
	}
	return out
}

func rateLimiter(cfg *config.Config, logger *logrus.Logger) *middleware.RateLimiter {
	if cfg.Server.RateLimitRPS == 0 {
		return nil
	}
	return middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
}

func initSessionStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.SessionStore, func(), error) {
	switch cfg.OTP.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Endpoint, err)
		}
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Using Redis OTP session store")
		return repository.NewRedisSessionStore(client, logger), func() { _ = client.Close() }, nil

	case config.StoreDynamoDB:
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("table", cfg.DynamoDB.TableName).Info("Using DynamoDB OTP session store")
		return repository.NewDynamoSessionStore(client, cfg.DynamoDB.TableName, logger), func() {}, nil

	default:
		logger.Info("Using in-memory OTP session store")
		return repository.NewMemorySessionStore(), func() {}, nil
	}
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}
