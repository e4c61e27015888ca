// internal/common/aws/clients.go
package aws

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Clients holds the AWS messaging clients used for receipt notifications.
// A nil field means the channel is disabled.
type Clients struct {
	SES *ses.Client
	SNS *sns.Client
}

// NewClients loads the default credential chain once and builds the enabled clients.
func NewClients(ctx context.Context, region string, sesEnabled, snsEnabled bool) (*Clients, error) {
	out := &Clients{}
	if !sesEnabled && !snsEnabled {
		return out, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if sesEnabled {
		out.SES = ses.NewFromConfig(cfg)
	}
	if snsEnabled {
		out.SNS = sns.NewFromConfig(cfg)
	}
	return out, nil
}
