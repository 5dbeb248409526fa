// Package credentialProvider resolves temporary cross-account credentials
// through retryable STS role assumption.
package credentialProvider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const roleSessionNamePrefix = "pipeline-set-version"

// Credentials are short-lived credentials for one orchestration run. They
// are never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// RetryConfig contains configuration for role assumption retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of assumption attempts per role.
	MaxAttempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 2,
		Backoff:     5 * time.Second,
	}
}

type CredentialProvider struct {
	stsClient stsiface.STSAPI
	retry     *RetryConfig
	sleep     func(time.Duration)
	logger    *zap.Logger
}

func NewCredentialProvider(stsClient stsiface.STSAPI, retry *RetryConfig, logger *zap.Logger) *CredentialProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &CredentialProvider{
		stsClient: stsClient,
		retry:     retry,
		sleep:     time.Sleep,
		logger:    logger,
	}
}

// WithSleep overrides the backoff sleep function. Tests use this to run
// without real delays.
func (cp *CredentialProvider) WithSleep(sleep func(time.Duration)) *CredentialProvider {
	cp.sleep = sleep
	return cp
}

// AssumeRole assumes roleName in accountID, retrying failed attempts after a
// fixed backoff up to the configured bound. When attempts are exhausted and a
// fallback role was supplied, the fallback is tried once under the same retry
// bound; there is no further fallback chaining. Exhaustion without a fallback
// aborts the run.
func (cp *CredentialProvider) AssumeRole(ctx context.Context, accountID, roleName, fallbackRole string) (*Credentials, error) {
	creds, err := cp.assumeRoleOnce(ctx, accountID, roleName)
	if err == nil {
		return creds, nil
	}
	if fallbackRole == "" {
		return nil, err
	}
	cp.logger.Warn("Role assumption exhausted, trying fallback role",
		zap.String("roleName", roleName),
		zap.String("fallbackRole", fallbackRole),
	)
	return cp.assumeRoleOnce(ctx, accountID, fallbackRole)
}

func (cp *CredentialProvider) assumeRoleOnce(ctx context.Context, accountID, roleName string) (*Credentials, error) {
	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
	sessionName := fmt.Sprintf("%s-%s", roleSessionNamePrefix, uuid.New().String()[:8])

	var lastErr error
	for attempt := 1; attempt <= cp.retry.MaxAttempts; attempt++ {
		cp.logger.Info("Trying to assume role",
			zap.String("roleArn", roleArn),
			zap.Int("attempt", attempt),
		)
		out, err := cp.stsClient.AssumeRoleWithContext(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleArn),
			RoleSessionName: aws.String(sessionName),
		})
		if err == nil {
			cp.logger.Info("Successfully assumed role", zap.String("roleArn", roleArn))
			return credentialsFromOutput(out), nil
		}
		lastErr = err
		if attempt == cp.retry.MaxAttempts {
			break
		}
		cp.logger.Warn("Failed to assume role, retrying after backoff",
			zap.String("roleArn", roleArn),
			zap.Duration("backoff", cp.retry.Backoff),
			zap.Error(err),
		)
		cp.sleep(cp.retry.Backoff)
	}
	return nil, errors.Wrapf(lastErr, "failed to assume role %s after %d attempts", roleArn, cp.retry.MaxAttempts)
}

func credentialsFromOutput(out *sts.AssumeRoleOutput) *Credentials {
	creds := &Credentials{
		AccessKeyID:     aws.StringValue(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.StringValue(out.Credentials.SecretAccessKey),
		SessionToken:    aws.StringValue(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds.Expiration = *out.Credentials.Expiration
	}
	return creds
}
