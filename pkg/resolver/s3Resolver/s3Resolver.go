// Package s3Resolver implements the object-store resolution strategy: scan
// the objects under an artifact's prefix and pick the newest one whose
// metadata tags qualify it as a release.
//
// Unlike the registry strategy, which fails an artifact when the newest image
// is not cleanly tagged, this strategy walks backward through history to the
// newest qualifying object, since listings mix release and non-release
// artifacts.
package s3Resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/versions"
)

// DefaultKeyPatterns match deployment packages named by a hexadecimal
// identifier. The %s slot receives the quoted listing prefix.
var DefaultKeyPatterns = []string{
	`^%s[0-9a-f]+\.(zip|jar)$`,
}

// tagsMetadataKey is the object metadata field holding the JSON-encoded tag
// list.
const tagsMetadataKey = "tags"

type Resolver struct {
	s3Client s3iface.S3API
	logger   *zap.Logger
}

func NewResolver(s3Client s3iface.S3API, logger *zap.Logger) *Resolver {
	return &Resolver{
		s3Client: s3Client,
		logger:   logger,
	}
}

// ResolveVersions returns the newest qualifying version per artifact found
// under <prefix>/<artifact>/ in the bucket. An artifact with no qualifying
// object is omitted from the result.
func (r *Resolver) ResolveVersions(ctx context.Context, artifacts map[string]versions.ArtifactFilters, bucket, prefix string, keyPatterns []string) (versions.ResolvedVersions, error) {
	if len(keyPatterns) == 0 {
		keyPatterns = DefaultKeyPatterns
	}

	resolved := versions.ResolvedVersions{}
	for name, filters := range artifacts {
		version, ok, err := r.resolveArtifact(ctx, name, filters.TagFilters, bucket, prefix, keyPatterns)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Warn("No qualifying object found for artifact",
				zap.String("artifact", name),
				zap.String("bucket", bucket),
				zap.String("prefix", prefix),
			)
			continue
		}
		r.logger.Info("Most recent qualifying object resolved",
			zap.String("artifact", name),
			zap.String("version", version),
		)
		resolved[name] = version
	}
	r.logger.Info("Resolved object-store versions", zap.Any("versions", resolved))
	return resolved, nil
}

func (r *Resolver) resolveArtifact(ctx context.Context, name string, tagFilters []string, bucket, prefix string, keyPatterns []string) (string, bool, error) {
	listPrefix := strings.TrimSuffix(prefix, "/") + "/" + name + "/"

	patterns, err := compileKeyPatterns(keyPatterns, listPrefix)
	if err != nil {
		return "", false, err
	}

	// All pages are accumulated before any filtering; filtering first would
	// silently truncate the candidate set.
	objects, err := r.listAllObjects(ctx, bucket, listPrefix)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to list objects under s3://%s/%s", bucket, listPrefix)
	}
	r.logger.Debug("Listed objects for artifact",
		zap.String("artifact", name),
		zap.Int("count", len(objects)),
	)

	var candidates []*s3.Object
	for _, obj := range objects {
		if matchesAny(patterns, aws.StringValue(obj.Key)) {
			candidates = append(candidates, obj)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return aws.TimeValue(candidates[i].LastModified).After(aws.TimeValue(candidates[j].LastModified))
	})

	for _, candidate := range candidates {
		key := aws.StringValue(candidate.Key)
		tags, err := r.objectTags(ctx, bucket, key)
		if err != nil {
			return "", false, err
		}
		if tags == nil {
			continue
		}

		version, ok := qualifyingVersion(tags, tagFilters)
		if !ok {
			r.logger.Debug("Object does not qualify, falling back to next candidate",
				zap.String("key", key),
				zap.Strings("tags", tags),
			)
			continue
		}
		r.logger.Info("Selected object",
			zap.String("artifact", name),
			zap.String("key", key),
		)
		return version, true, nil
	}
	return "", false, nil
}

func (r *Resolver) listAllObjects(ctx context.Context, bucket, prefix string) ([]*s3.Object, error) {
	var objects []*s3.Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	for {
		out, err := r.s3Client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, err
		}
		objects = append(objects, out.Contents...)
		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return objects, nil
}

// objectTags reads the JSON-encoded tag list from the object's metadata. A
// missing or malformed field disqualifies the object without failing the run.
func (r *Resolver) objectTags(ctx context.Context, bucket, key string) ([]string, error) {
	out, err := r.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to head object s3://%s/%s", bucket, key)
	}

	var raw string
	for k, v := range out.Metadata {
		if strings.EqualFold(k, tagsMetadataKey) {
			raw = aws.StringValue(v)
			break
		}
	}
	if raw == "" {
		return nil, nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		r.logger.Warn("Object has malformed tag metadata, skipping",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, nil
	}
	return tags, nil
}

func qualifyingVersion(tags, tagFilters []string) (string, bool) {
	versionTags := versions.VersionTags(tags)
	if len(versionTags) != 1 {
		return "", false
	}
	for _, required := range tagFilters {
		if !hasTag(tags, required) {
			return "", false
		}
	}
	return versionTags[0], true
}

// hasTag reports whether the tag set carries the required tag, either
// verbatim or as a version tag (required plus the reserved suffix).
func hasTag(tags []string, required string) bool {
	for _, t := range tags {
		if t == required {
			return true
		}
		if v, ok := versions.TryExtractVersion(t); ok && v == required {
			return true
		}
	}
	return false
}

func compileKeyPatterns(keyPatterns []string, listPrefix string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(keyPatterns))
	for _, p := range keyPatterns {
		expanded := p
		if strings.Contains(p, "%s") {
			expanded = fmt.Sprintf(p, regexp.QuoteMeta(listPrefix))
		}
		compiled, err := regexp.Compile(expanded)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid key pattern %q", p)
		}
		patterns = append(patterns, compiled)
	}
	return patterns, nil
}

func matchesAny(patterns []*regexp.Regexp, key string) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
