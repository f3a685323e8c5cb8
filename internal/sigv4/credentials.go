// Package sigv4 - credentials.go resolves the signing credentials.
package sigv4

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// NewCredentialsProvider returns static credentials when both keys are set. Otherwise,
// if useSDKChain is true, it falls back to the SDK default chain (env, shared
// config, IMDS); if not, it returns nil and the signer stays unready.
func NewCredentialsProvider(ctx context.Context, accessKeyID, secretAccessKey, region string, useSDKChain bool) (aws.CredentialsProvider, error) {
	if accessKeyID != "" && secretAccessKey != "" {
		return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""), nil
	}
	if !useSDKChain {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return cfg.Credentials, nil
}
