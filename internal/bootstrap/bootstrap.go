// Package bootstrap turns a loaded config into the running backends both
// services share: logger, job store, queue, telemetry and the scaling
// controller.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cuongbtq/job-pipeline/internal/config"
	"github.com/cuongbtq/job-pipeline/internal/queue"
	"github.com/cuongbtq/job-pipeline/internal/scaling"
	"github.com/cuongbtq/job-pipeline/internal/storage"
	awsx "github.com/cuongbtq/job-pipeline/shared/aws"
	"github.com/cuongbtq/job-pipeline/shared/logger"
	"github.com/cuongbtq/job-pipeline/shared/postgresql"
	"github.com/cuongbtq/job-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/job-pipeline/shared/redis"
	"github.com/cuongbtq/job-pipeline/shared/telemetry"
)

// HealthCheckFunc reports whether a backend is reachable
type HealthCheckFunc func(ctx context.Context) error

// Store is the configured job store plus its lifecycle hooks
type Store struct {
	storage.JobStore
	HealthCheck HealthCheckFunc
	Close       func() error
}

// Queue is the configured queue backend. Publisher and Consumer point at the
// same underlying queue.
type Queue struct {
	Publisher   queue.Publisher
	Consumer    queue.Consumer
	HealthCheck HealthCheckFunc // nil when the backend has no cheap probe
	Close       func() error
}

// NewLogger initializes and configures the application logger
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      cfg.App.Name,
	})
}

// NewTelemetry sets up trace and metric providers
func NewTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*telemetry.Providers, error) {
	return telemetry.Setup(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	}, logger)
}

// NewStore connects the job store selected by store.driver
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		client, err := postgresql.NewClient(ctx, PostgresConfig(&cfg.Database), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}

		store := storage.NewPostgresStore(client.GetDB(), logger)
		if cfg.Database.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				client.Close()
				return nil, err
			}
		}

		return &Store{JobStore: store, HealthCheck: client.HealthCheck, Close: client.Close}, nil

	case config.StoreDriverRedis:
		client, err := redis.NewClient(ctx, RedisConfig(&cfg.Redis), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		store := storage.NewRedisStore(client.GetClient(), logger)
		return &Store{JobStore: store, HealthCheck: client.HealthCheck, Close: client.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
}

// NewQueue connects the queue selected by queue.driver
func NewQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Queue, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverRabbitMQ:
		client, err := rabbitmq.NewClient(ctx, RabbitMQConfig(&cfg.RabbitMQ), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}

		q := queue.NewRabbitMQQueue(client, cfg.RabbitMQ.Consumer.Tag, logger)
		return &Queue{Publisher: q, Consumer: q, HealthCheck: client.HealthCheck, Close: client.Close}, nil

	case config.QueueDriverSQS:
		awsCfg, err := awsx.LoadConfig(ctx, AWSConfig(&cfg.AWS), logger)
		if err != nil {
			return nil, err
		}

		q := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), SQSConfig(&cfg.SQS), logger)
		return &Queue{Publisher: q, Consumer: q, Close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown queue driver: %q", cfg.Queue.Driver)
	}
}

// NewScaler builds the scaling controller. It returns nil, nil when no
// scaling target is configured.
func NewScaler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*scaling.Controller, error) {
	if !cfg.Scaling.Enabled() {
		logger.Info("Scaling target not configured, scaling endpoint disabled")
		return nil, nil
	}

	awsCfg, err := awsx.LoadConfig(ctx, AWSConfig(&cfg.AWS), logger)
	if err != nil {
		return nil, err
	}

	return scaling.NewController(scaling.NewClient(awsCfg), cfg.Scaling.Cluster, cfg.Scaling.Service, logger), nil
}

// PostgresConfig maps the database section onto the client config
func PostgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}
}

// RedisConfig maps the redis section onto the client config
func RedisConfig(cfg *config.RedisConfig) *redis.Config {
	return &redis.Config{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// RabbitMQConfig maps the rabbitmq section onto the client config
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		QueueType:          cfg.Queue.Type,
		DeliveryLimit:      cfg.Queue.DeliveryLimit,
		RoutingKey:         cfg.RoutingKey,
		DeadLetterExchange: cfg.DeadLetter.Exchange,
		DeadLetterQueue:    cfg.DeadLetter.Queue,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// SQSConfig maps the sqs section onto the queue config
func SQSConfig(cfg *config.SQSConfig) queue.SQSConfig {
	return queue.SQSConfig{
		QueueURL:           cfg.QueueURL,
		DeadLetterQueueURL: cfg.DeadLetterQueueURL,
		WaitTimeSeconds:    cfg.WaitTimeSeconds,
		MaxMessages:        cfg.MaxMessages,
		VisibilityTimeout:  cfg.VisibilityTimeout,
		PollBackoff:        cfg.PollBackoff,
	}
}

// AWSConfig maps the aws section onto the shared SDK config
func AWSConfig(cfg *config.AWSConfig) *awsx.Config {
	return &awsx.Config{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		Endpoint:        cfg.Endpoint,
	}
}
