// Package parameterPublisher writes resolved artifact versions to SSM
// Parameter Store under a namespaced path.
package parameterPublisher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/versions"
)

// reservedPrefixes are namespaces the parameter store keeps for itself.
var reservedPrefixes = []string{"aws", "ssm"}

type Publisher struct {
	ssmClient ssmiface.SSMAPI
	logger    *zap.Logger
}

func NewPublisher(ssmClient ssmiface.SSMAPI, logger *zap.Logger) *Publisher {
	return &Publisher{
		ssmClient: ssmClient,
		logger:    logger,
	}
}

// ValidateSSMPrefix rejects empty prefixes and prefixes colliding with the
// parameter store's reserved namespaces.
func ValidateSSMPrefix(prefix string) error {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return errors.New("ssm prefix must not be empty")
	}
	lower := strings.ToLower(trimmed)
	for _, reserved := range reservedPrefixes {
		if strings.HasPrefix(lower, reserved) {
			return errors.Errorf("ssm prefix %q collides with the reserved namespace %q", prefix, reserved)
		}
	}
	return nil
}

// Publish upserts one string parameter per resolved version at
// /<prefix>/<name>. Each write is independent: a failed name does not stop
// the remaining writes, and all failed names are reported together.
func (p *Publisher) Publish(ctx context.Context, resolved versions.ResolvedVersions, ssmPrefix string) error {
	if err := ValidateSSMPrefix(ssmPrefix); err != nil {
		return err
	}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		paramName := fmt.Sprintf("/%s/%s", strings.Trim(ssmPrefix, "/"), name)
		p.logger.Info("Setting SSM parameter",
			zap.String("name", paramName),
			zap.String("value", resolved[name]),
		)
		_, err := p.ssmClient.PutParameterWithContext(ctx, &ssm.PutParameterInput{
			Name:      aws.String(paramName),
			Value:     aws.String(resolved[name]),
			Type:      aws.String(ssm.ParameterTypeString),
			Overwrite: aws.Bool(true),
		})
		if err != nil {
			p.logger.Error("Failed to set SSM parameter",
				zap.String("name", paramName),
				zap.Error(err),
			)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("failed to set parameters for: %s", strings.Join(failed, ", "))
	}
	return nil
}
