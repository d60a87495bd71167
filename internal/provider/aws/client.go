// Package aws implements the reconciler's remote API on top of the AWS SDK.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"
)

// Client talks to one AWS region.
type Client struct {
	region    string
	accountID string

	// AWS clients (interfaces for testability)
	asgClient AutoScalingAPI
	ec2Client EC2API
	elbClient ELBAPI
}

// Config holds AWS connection settings. Empty fields fall back to the
// SDK's default chain.
type Config struct {
	Region  string
	Profile string
}

// New resolves credentials and verifies them against STS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &AuthError{Op: "load aws config", Err: err}
	}
	if awsCfg.Region == "" {
		return nil, &AuthError{Op: "load aws config", Err: fmt.Errorf("no region configured")}
	}

	accountID, err := callerAccount(ctx, sts.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("region", awsCfg.Region).
		Str("account", accountID).
		Msg("aws credentials verified")

	return &Client{
		region:    awsCfg.Region,
		accountID: accountID,
		asgClient: autoscaling.NewFromConfig(awsCfg),
		ec2Client: ec2.NewFromConfig(awsCfg),
		elbClient: elasticloadbalancingv2.NewFromConfig(awsCfg),
	}, nil
}

func callerAccount(ctx context.Context, client STSAPI) (string, error) {
	output, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", &AuthError{Op: "get caller identity", Err: err}
	}
	return aws.ToString(output.Account), nil
}

// Region returns the region the client is bound to.
func (c *Client) Region() string {
	return c.region
}

// AccountID returns the account the credentials belong to.
func (c *Client) AccountID() string {
	return c.accountID
}
