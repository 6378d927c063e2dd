// Package aws builds the shared AWS SDK configuration for the SQS queue and
// the Application Auto Scaling controller.
package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Config holds AWS client settings. Empty credentials fall back to the
// default chain (env, shared config, task role).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Endpoint        string // override for LocalStack/ElasticMQ
}

// LoadConfig resolves an aws.Config from cfg
func LoadConfig(ctx context.Context, cfg *Config, logger *slog.Logger) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	logger.Info("AWS config loaded",
		slog.String("region", awsCfg.Region),
		slog.Bool("static_credentials", cfg.AccessKeyID != ""),
		slog.String("endpoint", cfg.Endpoint),
	)

	return awsCfg, nil
}
