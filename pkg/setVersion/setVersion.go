// Package setVersion orchestrates one version-sync run: resolve the newest
// version of each requested artifact, then publish the versions to the
// parameter store.
package setVersion

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/credentialProvider"
	"github.com/vydev/pipeline-set-version/pkg/parameterPublisher"
	"github.com/vydev/pipeline-set-version/pkg/setVersion/setVersionConfig"
	"github.com/vydev/pipeline-set-version/pkg/versions"
)

// Key patterns per artifact class. Lambda packages may be jars, frontend
// bundles are always zips.
var (
	LambdaKeyPatterns   = []string{`^%s[0-9a-f]+\.(zip|jar)$`}
	FrontendKeyPatterns = []string{`^%s[0-9a-f]+\.zip$`}
)

// EcrVersionResolver resolves versions from the container registry.
type EcrVersionResolver interface {
	ResolveVersions(ctx context.Context, artifacts map[string]versions.ArtifactFilters) (versions.ResolvedVersions, error)
}

// ObjectVersionResolver resolves versions from an object-store prefix.
type ObjectVersionResolver interface {
	ResolveVersions(ctx context.Context, artifacts map[string]versions.ArtifactFilters, bucket, prefix string, keyPatterns []string) (versions.ResolvedVersions, error)
}

// RoleAssumer resolves temporary cross-account credentials.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, accountID, roleName, fallbackRole string) (*credentialProvider.Credentials, error)
}

// VersionPublisher writes one class of resolved versions to the parameter
// store.
type VersionPublisher interface {
	Publish(ctx context.Context, resolved versions.ResolvedVersions, ssmPrefix string) error
}

// PublisherFactory builds a publisher for the run, bound to the supplied
// temporary credentials; nil credentials mean ambient credentials.
type PublisherFactory func(creds *credentialProvider.Credentials) (VersionPublisher, error)

// Result is the outbound per-class version mapping, returned whether or not
// publishing was requested.
type Result struct {
	Ecr      map[string]string `json:"ecr"`
	Frontend map[string]string `json:"frontend"`
	Lambda   map[string]string `json:"lambda"`
}

type SetVersion struct {
	cfg            *setVersionConfig.SetVersionConfig
	ecrResolver    EcrVersionResolver
	objectResolver ObjectVersionResolver
	roleAssumer    RoleAssumer
	newPublisher   PublisherFactory
	logger         *zap.Logger
}

func NewSetVersion(
	cfg *setVersionConfig.SetVersionConfig,
	ecrResolver EcrVersionResolver,
	objectResolver ObjectVersionResolver,
	roleAssumer RoleAssumer,
	newPublisher PublisherFactory,
	logger *zap.Logger,
) *SetVersion {
	return &SetVersion{
		cfg:            cfg,
		ecrResolver:    ecrResolver,
		objectResolver: objectResolver,
		roleAssumer:    roleAssumer,
		newPublisher:   newPublisher,
		logger:         logger,
	}
}

// Run executes one orchestration. The merged result is returned even when
// publishing is disabled, so callers can dry-run a resolve-only pass.
func (sv *SetVersion) Run(ctx context.Context) (*Result, error) {
	cfg := sv.cfg
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if cfg.ShouldSetVersions() {
		if err := parameterPublisher.ValidateSSMPrefix(cfg.SSMPrefix); err != nil {
			return nil, err
		}
	}

	result, err := sv.resolveVersions(ctx)
	if err != nil {
		return nil, err
	}

	// Names must be disjoint across classes: each publishes to the same
	// /<prefix>/<name> path.
	if err := checkNameCollisions(result); err != nil {
		return nil, err
	}

	if !cfg.ShouldSetVersions() {
		sv.logger.Info("Publishing disabled, returning resolved versions only")
		return result, nil
	}

	var creds *credentialProvider.Credentials
	if cfg.AccountID != "" && cfg.RoleToAssume != "" {
		creds, err = sv.roleAssumer.AssumeRole(ctx, cfg.AccountID, cfg.RoleToAssume, cfg.FallbackRole)
		if err != nil {
			return nil, err
		}
	}

	publisher, err := sv.newPublisher(creds)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create parameter publisher")
	}
	for _, class := range []struct {
		name     string
		versions map[string]string
	}{
		{"ecr", result.Ecr},
		{"frontend", result.Frontend},
		{"lambda", result.Lambda},
	} {
		if len(class.versions) == 0 {
			continue
		}
		if err := publisher.Publish(ctx, class.versions, cfg.SSMPrefix); err != nil {
			return nil, errors.Wrapf(err, "failed to publish %s versions", class.name)
		}
	}
	return result, nil
}

func (sv *SetVersion) resolveVersions(ctx context.Context) (*Result, error) {
	cfg := sv.cfg
	if !cfg.ShouldGetVersions() {
		sv.logger.Info("Version discovery disabled, using supplied versions")
		return &Result{
			Ecr:      cfg.Versions.Ecr,
			Frontend: cfg.Versions.Frontend,
			Lambda:   cfg.Versions.Lambda,
		}, nil
	}

	result := &Result{}
	var err error

	if len(cfg.EcrApplications) > 0 {
		result.Ecr, err = sv.ecrResolver.ResolveVersions(ctx, toArtifactFilters(cfg.EcrApplications))
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.LambdaApplications) > 0 {
		result.Lambda, err = sv.objectResolver.ResolveVersions(ctx,
			toArtifactFilters(cfg.LambdaApplications), cfg.LambdaS3Bucket, cfg.LambdaS3Prefix, LambdaKeyPatterns)
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.FrontendApplications) > 0 {
		result.Frontend, err = sv.objectResolver.ResolveVersions(ctx,
			toArtifactFilters(cfg.FrontendApplications), cfg.FrontendS3Bucket, cfg.FrontendS3Prefix, FrontendKeyPatterns)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func toArtifactFilters(applications map[string]setVersionConfig.Application) map[string]versions.ArtifactFilters {
	artifacts := make(map[string]versions.ArtifactFilters, len(applications))
	for name, app := range applications {
		artifacts[name] = versions.ArtifactFilters{TagFilters: app.TagFilters}
	}
	return artifacts
}

func checkNameCollisions(result *Result) error {
	seen := map[string]string{}
	for _, class := range []struct {
		name     string
		versions map[string]string
	}{
		{"ecr", result.Ecr},
		{"frontend", result.Frontend},
		{"lambda", result.Lambda},
	} {
		for name := range class.versions {
			if other, ok := seen[name]; ok {
				return errors.Errorf("artifact name %q appears in both %s and %s and would publish to the same parameter path", name, other, class.name)
			}
			seen[name] = class.name
		}
	}
	return nil
}
