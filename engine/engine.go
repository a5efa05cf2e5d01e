package engine

import (
	"context"
	"log/slog"
	"os"
	"time"

	tracer "github.com/pharmasuite/lifecycle-engine/config"
	"github.com/pharmasuite/lifecycle-engine/config/database"
	"github.com/pharmasuite/lifecycle-engine/config/kafka"
	"github.com/pharmasuite/lifecycle-engine/config/redis"
	"github.com/pharmasuite/lifecycle-engine/delivery"
	"github.com/pharmasuite/lifecycle-engine/gateways"
	"github.com/pharmasuite/lifecycle-engine/lifecycle"
	"github.com/pharmasuite/lifecycle-engine/models"
	"github.com/pharmasuite/lifecycle-engine/provisioning"
	"github.com/pharmasuite/lifecycle-engine/stats"
	"github.com/pharmasuite/lifecycle-engine/utils"
)

var (
	logger      *slog.Logger
	kafkaConfig kafka.ServerConfig
)

const (
	envEnv = "ENV"

	envDatabaseURL            = "DATABASE_URL"
	envDatabaseMaxConnections = "PHARMASUITE_DATABASE_MAX_CONNECTIONS"

	envKafkaBootstrapServers  = "PHARMASUITE_KAFKA_BOOTSTRAP_SERVERS"
	envKafkaConsumerGroup     = "PHARMASUITE_KAFKA_CONSUMER_GROUP"
	envKafkaLifecycleTopic    = "PHARMASUITE_KAFKA_LIFECYCLE_EVENTS_TOPIC"
	envKafkaPassword          = "PHARMASUITE_KAFKA_PASSWORD"
	envKafkaScramAlgorithm    = "PHARMASUITE_KAFKA_SCRAM_ALGORITHM"
	envKafkaTLS               = "PHARMASUITE_KAFKA_TLS"
	envKafkaUsageReportsTopic = "PHARMASUITE_KAFKA_USAGE_REPORTS_TOPIC"
	envKafkaUsername          = "PHARMASUITE_KAFKA_USERNAME"

	envRedisStoreDB       = "PHARMASUITE_REDIS_STORE_DB"
	envRedisStorePassword = "PHARMASUITE_REDIS_STORE_PASSWORD"
	envRedisStoreTLS      = "PHARMASUITE_REDIS_STORE_TLS"
	envRedisStoreURL      = "PHARMASUITE_REDIS_STORE_URL"

	envPlatformAPIToken      = "PHARMASUITE_PLATFORM_API_TOKEN"
	envPlatformAPIURL        = "PHARMASUITE_PLATFORM_API_URL"
	envPlatformGitRepo       = "PHARMASUITE_PLATFORM_GIT_REPO"
	envPlatformProjectPrefix = "PHARMASUITE_PLATFORM_PROJECT_PREFIX"
	envPlatformTeamID        = "PHARMASUITE_PLATFORM_TEAM_ID"

	envAvadaPayAPIKey      = "AVADAPAY_API_KEY"
	envAvadaPayAPIURL      = "AVADAPAY_API_URL"
	envAvadaPayCallbackURL = "AVADAPAY_CALLBACK_URL"

	envStrowalletAPIKey      = "STROWALLET_API_KEY"
	envStrowalletAPISecret   = "STROWALLET_API_SECRET"
	envStrowalletAPIURL      = "STROWALLET_API_URL"
	envStrowalletCallbackURL = "STROWALLET_CALLBACK_URL"

	envStripeCancelURL  = "STRIPE_CANCEL_URL"
	envStripeSecretKey  = "STRIPE_SECRET_KEY"
	envStripeSuccessURL = "STRIPE_SUCCESS_URL"

	envPostmarkAccountToken = "POSTMARK_ACCOUNT_TOKEN"
	envPostmarkServerToken  = "POSTMARK_SERVER_TOKEN"
	envSenderEmail          = "PHARMASUITE_SENDER_EMAIL"
	envReplyToEmail         = "PHARMASUITE_REPLY_TO_EMAIL"

	envTwilioAccountSID   = "TWILIO_ACCOUNT_SID"
	envTwilioAuthToken    = "TWILIO_AUTH_TOKEN"
	envTwilioWhatsAppFrom = "TWILIO_WHATSAPP_FROM"

	envFailedPaymentLookback = "PHARMASUITE_FAILED_PAYMENT_LOOKBACK"
	envReminderDaysAhead     = "PHARMASUITE_REMINDER_DAYS_AHEAD"
	envSchedulerInterval     = "PHARMASUITE_SCHEDULER_INTERVAL"
	envUsageFetchTimeout     = "PHARMASUITE_USAGE_FETCH_TIMEOUT"
)

type Config struct {
	Logger       *slog.Logger
	UseTelemetry bool
}

func initStore() (*models.AdminStore, *database.DB, error) {
	maxConns, err := utils.GetEnvAsInt(envDatabaseMaxConnections, 20)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewConnection(database.DBConfig{
		Url:      os.Getenv(envDatabaseURL),
		MaxConns: int32(maxConns),
	})
	if err != nil {
		return nil, nil, err
	}

	return models.NewAdminStore(db), db, nil
}

func initOrphanStore(ctx context.Context, useTelemetry bool) (*models.FlagStore, error) {
	if os.Getenv(envRedisStoreURL) == "" {
		return nil, nil
	}

	redisDb, err := utils.GetEnvAsInt(envRedisStoreDB, 0)
	if err != nil {
		return nil, err
	}

	redisConfig := redis.Config{
		Address:      os.Getenv(envRedisStoreURL),
		Password:     os.Getenv(envRedisStorePassword),
		DB:           redisDb,
		UseTelemetry: useTelemetry,
		UseTLS:       utils.GetEnvAsBool(envRedisStoreTLS, os.Getenv(envEnv) == "production"),
	}

	db, err := redis.NewRedisDB(ctx, redisConfig)
	if err != nil {
		return nil, err
	}

	return models.NewFlagStore(ctx, db, "orphaned_projects"), nil
}

func initEventPublisher(ctx context.Context) (*lifecycle.EventPublisher, error) {
	topic := os.Getenv(envKafkaLifecycleTopic)
	if topic == "" {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafkaConfig, &kafka.ProducerConfig{Topic: topic})
	if err != nil {
		return nil, err
	}
	if err := producer.Ping(ctx); err != nil {
		return nil, err
	}

	return lifecycle.NewEventPublisher(producer, logger), nil
}

// initGateways registers every payment provider whose credentials are
// configured. An instance paying through an unregistered provider gets a
// validation error at initiation, not a wiring panic.
func initGateways() *gateways.Registry {
	registry := gateways.NewRegistry()

	if os.Getenv(envAvadaPayAPIKey) != "" {
		registry.Register(models.ProviderAvadaPay, gateways.NewAvadaPayGateway(gateways.AvadaPayConfig{
			APIURL:      os.Getenv(envAvadaPayAPIURL),
			APIKey:      os.Getenv(envAvadaPayAPIKey),
			CallbackURL: os.Getenv(envAvadaPayCallbackURL),
		}))
	}

	if os.Getenv(envStrowalletAPIKey) != "" {
		registry.Register(models.ProviderStrowallet, gateways.NewStrowalletGateway(gateways.StrowalletConfig{
			APIURL:      os.Getenv(envStrowalletAPIURL),
			APIKey:      os.Getenv(envStrowalletAPIKey),
			APISecret:   os.Getenv(envStrowalletAPISecret),
			CallbackURL: os.Getenv(envStrowalletCallbackURL),
		}))
	}

	if os.Getenv(envStripeSecretKey) != "" {
		registry.Register(models.ProviderStripe, gateways.NewStripeGateway(gateways.StripeConfig{
			SecretKey:  os.Getenv(envStripeSecretKey),
			SuccessURL: os.Getenv(envStripeSuccessURL),
			CancelURL:  os.Getenv(envStripeCancelURL),
		}))
	}

	return registry
}

func initSenders() (delivery.EmailSender, delivery.WhatsAppSender, error) {
	email, err := delivery.NewPostmarkSender(delivery.EmailConfig{
		ServerToken:  os.Getenv(envPostmarkServerToken),
		AccountToken: os.Getenv(envPostmarkAccountToken),
		SenderEmail:  os.Getenv(envSenderEmail),
		ReplyToEmail: os.Getenv(envReplyToEmail),
		MessageTag:   "lifecycle",
	})
	if err != nil {
		return nil, nil, err
	}

	whatsapp, err := delivery.NewTwilioSender(delivery.WhatsAppConfig{
		AccountSID: os.Getenv(envTwilioAccountSID),
		AuthToken:  os.Getenv(envTwilioAuthToken),
		FromNumber: os.Getenv(envTwilioWhatsAppFrom),
	})
	if err != nil {
		return nil, nil, err
	}

	return email, whatsapp, nil
}

func startUsageConsumer(ctx context.Context, registry *lifecycle.Registry) error {
	topic := os.Getenv(envKafkaUsageReportsTopic)
	if topic == "" {
		return nil
	}

	usageConsumer := stats.NewConsumer(registry)
	consumer, err := kafka.NewConsumer(kafkaConfig, kafka.ConsumerConfig{
		Topic:         topic,
		ConsumerGroup: utils.GetEnvOr(envKafkaConsumerGroup, "lifecycle_engine"),
		HandleRecord:  usageConsumer.ProcessRecord,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("usage consumer stopped", slog.String("error", err.Error()))
			utils.CaptureError(err)
		}
	}()

	return nil
}

func runScheduler(ctx context.Context, scheduler *lifecycle.Scheduler) {
	interval := utils.GetEnvAsDuration(envSchedulerInterval, time.Hour)

	run := func() {
		span := tracer.GetTracerSpan(ctx, "lifecycle", "Scheduler.Run")
		report := scheduler.Run(ctx)
		span.End()

		for _, step := range report.Steps {
			attrs := []any{
				slog.String("step", step.Name),
				slog.Int("processed", step.Processed),
			}
			if len(step.Errors) > 0 {
				attrs = append(attrs, slog.Int("errors", len(step.Errors)))
				logger.Warn("scheduler step finished with errors", attrs...)
				continue
			}
			logger.Info("scheduler step finished", attrs...)
		}
	}

	run()
	if interval <= 0 {
		// One-shot mode for cron-driven deployments.
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Start wires the whole engine from the environment and blocks until the
// context is canceled (or, with an unset scheduler interval, until the
// single batch run finishes).
func Start(ctx context.Context, cfg *Config) {
	logger = cfg.Logger

	serverBrokers := utils.ParseBrokersEnv(os.Getenv(envKafkaBootstrapServers))
	kafkaConfig = kafka.ServerConfig{
		ScramAlgorithm: os.Getenv(envKafkaScramAlgorithm),
		TLS:            os.Getenv(envKafkaTLS) == "true",
		Servers:        serverBrokers,
		UseTelemetry:   cfg.UseTelemetry,
		UserName:       os.Getenv(envKafkaUsername),
		Password:       os.Getenv(envKafkaPassword),
	}

	store, db, err := initStore()
	if err != nil {
		logger.Error("Error connecting to the database", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}
	defer db.Close()

	orphans, err := initOrphanStore(ctx, cfg.UseTelemetry)
	if err != nil {
		logger.Error("Error connecting to the orphan store", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}

	var publisher *lifecycle.EventPublisher
	if len(serverBrokers) > 0 {
		publisher, err = initEventPublisher(ctx)
		if err != nil {
			logger.Error("Error starting the event publisher", slog.String("error", err.Error()))
			utils.CaptureError(err)
			panic(err.Error())
		}
	}

	email, whatsapp, err := initSenders()
	if err != nil {
		logger.Error("Error configuring the delivery senders", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}

	provisioner := provisioning.NewPlatformClient(provisioning.PlatformConfig{
		APIURL:        os.Getenv(envPlatformAPIURL),
		APIToken:      os.Getenv(envPlatformAPIToken),
		TeamID:        os.Getenv(envPlatformTeamID),
		ProjectPrefix: os.Getenv(envPlatformProjectPrefix),
		GitRepo:       os.Getenv(envPlatformGitRepo),
	}, logger)

	var flagger models.Flagger
	if orphans != nil {
		flagger = orphans
		defer orphans.Close()
	}

	ledger := lifecycle.NewLedger(store, store, publisher)
	registry := lifecycle.NewRegistry(store, store, ledger, provisioner, flagger, publisher)
	recorder := lifecycle.NewRecorder(store, initGateways())
	dispatcher := lifecycle.NewDispatcher(store, email, whatsapp)
	usage := stats.NewReportingClient(registry, utils.GetEnvAsDuration(envUsageFetchTimeout, 10*time.Second))

	reminderDays, err := utils.GetEnvAsInt(envReminderDaysAhead, 2)
	if err != nil {
		logger.Error("Error reading the reminder window", slog.String("error", err.Error()))
		utils.CaptureError(err)
		panic(err.Error())
	}

	scheduler := lifecycle.NewScheduler(lifecycle.SchedulerConfig{
		ReminderDaysAhead:     reminderDays,
		FailedPaymentLookback: utils.GetEnvAsDuration(envFailedPaymentLookback, 24*time.Hour),
	}, ledger, registry, recorder, dispatcher, usage)

	if len(serverBrokers) > 0 {
		if err := startUsageConsumer(ctx, registry); err != nil {
			logger.Error("Error starting the usage consumer", slog.String("error", err.Error()))
			utils.CaptureError(err)
			panic(err.Error())
		}
	}

	runScheduler(ctx, scheduler)
}
