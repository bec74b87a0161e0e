package sqs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/iyhunko/price-tracker/internal/config"
)

// DefaultRegion is used when AWS_REGION is not set.
const DefaultRegion = "us-east-1"

// NewClient creates the SQS client for the price event queue.
// A configured endpoint (LocalStack) overrides the AWS one.
func NewClient(ctx context.Context, conf config.AWSConfig) (*sqs.Client, error) {
	region := conf.Region
	if region == "" {
		region = DefaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if conf.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(conf.Endpoint)
	}

	return sqs.NewFromConfig(awsCfg), nil
}
