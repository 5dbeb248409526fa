package setVersion

import (
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/sts"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/clients"
	"github.com/vydev/pipeline-set-version/pkg/credentialProvider"
	"github.com/vydev/pipeline-set-version/pkg/parameterPublisher"
	"github.com/vydev/pipeline-set-version/pkg/resolver/ecrResolver"
	"github.com/vydev/pipeline-set-version/pkg/resolver/s3Resolver"
	"github.com/vydev/pipeline-set-version/pkg/setVersion/setVersionConfig"
)

// NewDefaultSetVersion wires the orchestrator with real AWS clients.
// Resolvers run on the ambient credential chain; the publisher runs on the
// assumed-role credentials when the request asks for them.
func NewDefaultSetVersion(cfg *setVersionConfig.SetVersionConfig, region string, retry *credentialProvider.RetryConfig, logger *zap.Logger) (*SetVersion, error) {
	sess, err := clients.NewSession(region)
	if err != nil {
		return nil, err
	}

	newPublisher := func(creds *credentialProvider.Credentials) (VersionPublisher, error) {
		publisherSess, err := clients.NewSessionWithCredentials(region, creds)
		if err != nil {
			return nil, err
		}
		return parameterPublisher.NewPublisher(ssm.New(publisherSess), logger), nil
	}

	return NewSetVersion(
		cfg,
		ecrResolver.NewResolver(ecr.New(sess), logger),
		s3Resolver.NewResolver(s3.New(sess), logger),
		credentialProvider.NewCredentialProvider(sts.New(sess), retry, logger),
		newPublisher,
		logger,
	), nil
}
