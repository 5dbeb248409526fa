// Package ecrResolver implements the registry resolution strategy: for each
// requested repository, pick the most recently pushed image carrying exactly
// one version tag and record its extracted version.
package ecrResolver

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/versions"
)

type Resolver struct {
	ecrClient ecriface.ECRAPI
	logger    *zap.Logger
}

func NewResolver(ecrClient ecriface.ECRAPI, logger *zap.Logger) *Resolver {
	return &Resolver{
		ecrClient: ecrClient,
		logger:    logger,
	}
}

// ResolveVersions returns the newest version per requested repository. A
// repository with no qualifying image is omitted from the result with a
// warning; only registry listing failures abort the run.
func (r *Resolver) ResolveVersions(ctx context.Context, artifacts map[string]versions.ArtifactFilters) (versions.ResolvedVersions, error) {
	repositories, err := r.listRepositories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ECR repositories")
	}
	if len(artifacts) > 0 {
		repositories = filterRepositories(repositories, artifacts)
	}
	r.logger.Debug("Found ECR repositories", zap.Int("count", len(repositories)))

	resolved := versions.ResolvedVersions{}
	for _, repo := range repositories {
		name := aws.StringValue(repo.RepositoryName)
		tagFilters := artifacts[name].TagFilters

		version, ok, err := r.resolveRepository(ctx, name, tagFilters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		r.logger.Info("Most recent image resolved",
			zap.String("repository", name),
			zap.String("version", version),
		)
		resolved[name] = version
	}
	r.logger.Info("Resolved ECR versions", zap.Any("versions", resolved))
	return resolved, nil
}

func (r *Resolver) listRepositories(ctx context.Context) ([]*ecr.Repository, error) {
	var repositories []*ecr.Repository
	input := &ecr.DescribeRepositoriesInput{}
	for {
		out, err := r.ecrClient.DescribeRepositoriesWithContext(ctx, input)
		if err != nil {
			return nil, err
		}
		repositories = append(repositories, out.Repositories...)
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return repositories, nil
}

func (r *Resolver) resolveRepository(ctx context.Context, name string, tagFilters []string) (string, bool, error) {
	images, err := r.describeTaggedImages(ctx, name, tagFilters)
	if err != nil {
		if isImageNotFound(err) {
			r.logger.Warn("No matching images found in ECR repository",
				zap.String("repository", name),
				zap.String("tagFilters", strings.Join(tagFilters, ", ")),
			)
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to describe images in repository %s", name)
	}

	var candidates []*ecr.ImageDetail
	for _, image := range images {
		if len(versions.VersionTags(aws.StringValueSlice(image.ImageTags))) > 0 {
			candidates = append(candidates, image)
		}
	}
	if len(candidates) == 0 {
		r.logger.Warn("No image carries a version tag",
			zap.String("repository", name),
			zap.String("tagFilters", strings.Join(tagFilters, ", ")),
		)
		return "", false, nil
	}

	// Stable sort keeps timestamp ties deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		return aws.TimeValue(candidates[i].ImagePushedAt).Before(aws.TimeValue(candidates[j].ImagePushedAt))
	})
	mostRecent := candidates[len(candidates)-1]

	versionTags := versions.VersionTags(aws.StringValueSlice(mostRecent.ImageTags))
	if len(versionTags) > 1 {
		r.logger.Warn("Most recent image carries multiple version tags, skipping",
			zap.String("repository", name),
			zap.Strings("versions", versionTags),
		)
		return "", false, nil
	}
	return versionTags[0], true, nil
}

func (r *Resolver) describeTaggedImages(ctx context.Context, name string, tagFilters []string) ([]*ecr.ImageDetail, error) {
	input := &ecr.DescribeImagesInput{
		RepositoryName: aws.String(name),
		Filter: &ecr.DescribeImagesFilter{
			TagStatus: aws.String(ecr.TagStatusTagged),
		},
	}
	for _, tag := range tagFilters {
		input.ImageIds = append(input.ImageIds, &ecr.ImageIdentifier{
			ImageTag: aws.String(tag),
		})
	}

	var images []*ecr.ImageDetail
	for {
		out, err := r.ecrClient.DescribeImagesWithContext(ctx, input)
		if err != nil {
			return nil, err
		}
		images = append(images, out.ImageDetails...)
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return images, nil
}

func filterRepositories(repositories []*ecr.Repository, artifacts map[string]versions.ArtifactFilters) []*ecr.Repository {
	var filtered []*ecr.Repository
	for _, repo := range repositories {
		if _, ok := artifacts[aws.StringValue(repo.RepositoryName)]; ok {
			filtered = append(filtered, repo)
		}
	}
	return filtered
}

func isImageNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case ecr.ErrCodeImageNotFoundException, ecr.ErrCodeRepositoryNotFoundException:
		return true
	}
	return false
}
