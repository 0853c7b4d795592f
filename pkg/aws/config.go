package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Settings selects the region and, for LocalStack, a shared endpoint plus static credentials.
type Settings struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig loads the default AWS config chain and applies the overrides in s.
// When Endpoint is set every client built from the config targets it (LocalStack edge port).
func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" && s.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}

	if s.Endpoint != "" {
		cfg.BaseEndpoint = sdkaws.String(s.Endpoint)
	}
	return cfg, nil
}
