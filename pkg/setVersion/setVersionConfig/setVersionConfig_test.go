package setVersionConfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validJson = `
{
	"ssm_prefix": "trafficinfo",
	"ecr_applications": {
		"svc-a": {"tag_filters": ["master-branch"]}
	},
	"lambda_applications": {
		"fn-a": {}
	},
	"lambda_s3_bucket": "artifact-bucket",
	"lambda_s3_prefix": "app/lambdas"
}`
	invalidJson = `
{
	"ssm_prefix": ["not", "a", "string"]
}`

	validYaml = `
---
ssm_prefix: trafficinfo
ecr_repositories:
  - svc-a
ecr_image_tag_filters:
  - master-branch
`
	invalidYaml = `
---
ssm_prefix:
  nested: true
`
)

func boolPtr(b bool) *bool { return &b }

func Test_SetVersionConfig(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		t.Run("Should create a new config from a json string", func(t *testing.T) {
			c, err := NewSetVersionConfigFromJsonBytes([]byte(validJson))
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, "trafficinfo", c.SSMPrefix)
			assert.Equal(t, []string{"master-branch"}, c.EcrApplications["svc-a"].TagFilters)
		})
		t.Run("Should fail to create a new config from an invalid json string", func(t *testing.T) {
			c, err := NewSetVersionConfigFromJsonBytes([]byte(invalidJson))
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	})
	t.Run("YAML", func(t *testing.T) {
		t.Run("Should create a new config from a yaml string", func(t *testing.T) {
			c, err := NewSetVersionConfigFromYamlBytes([]byte(validYaml))
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, []string{"svc-a"}, c.EcrRepositories)
		})
		t.Run("Should fail to create a new config from an invalid yaml string", func(t *testing.T) {
			c, err := NewSetVersionConfigFromYamlBytes([]byte(invalidYaml))
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	})
}

func Test_Normalize(t *testing.T) {
	t.Run("Should convert legacy flat lists into application maps", func(t *testing.T) {
		c := &SetVersionConfig{
			EcrRepositories:    []string{"svc-a", "svc-b"},
			EcrImageTagFilters: []string{"master-branch"},
			LambdaNames:        []string{"fn-a"},
			FrontendNames:      []string{"web-a"},
		}
		c.Normalize()
		assert.Equal(t, map[string]Application{
			"svc-a": {TagFilters: []string{"master-branch"}},
			"svc-b": {TagFilters: []string{"master-branch"}},
		}, c.EcrApplications)
		assert.Equal(t, map[string]Application{"fn-a": {}}, c.LambdaApplications)
		assert.Equal(t, map[string]Application{"web-a": {}}, c.FrontendApplications)
	})
	t.Run("Should leave explicit application maps untouched", func(t *testing.T) {
		c := &SetVersionConfig{
			EcrApplications: map[string]Application{"svc-a": {TagFilters: []string{"release"}}},
			EcrRepositories: []string{"svc-b"},
		}
		c.Normalize()
		assert.Equal(t, map[string]Application{"svc-a": {TagFilters: []string{"release"}}}, c.EcrApplications)
	})
}

func Test_Validate(t *testing.T) {
	t.Run("Should require ssm_prefix when publishing", func(t *testing.T) {
		c := &SetVersionConfig{}
		assert.Error(t, c.Validate())
	})
	t.Run("Should not require ssm_prefix for a resolve-only run", func(t *testing.T) {
		c := &SetVersionConfig{SetVersions: boolPtr(false)}
		assert.NoError(t, c.Validate())
	})
	t.Run("Should require role_to_assume and account_id together", func(t *testing.T) {
		c := &SetVersionConfig{SSMPrefix: "trafficinfo", RoleToAssume: "deploy"}
		assert.Error(t, c.Validate())
		c = &SetVersionConfig{SSMPrefix: "trafficinfo", AccountID: "123456789012"}
		assert.Error(t, c.Validate())
		c = &SetVersionConfig{SSMPrefix: "trafficinfo", RoleToAssume: "deploy", AccountID: "123456789012"}
		assert.NoError(t, c.Validate())
	})
	t.Run("Should require a bucket and prefix with lambda applications", func(t *testing.T) {
		c := &SetVersionConfig{
			SSMPrefix:          "trafficinfo",
			LambdaApplications: map[string]Application{"fn-a": {}},
		}
		assert.Error(t, c.Validate())
		c.LambdaS3Bucket = "artifact-bucket"
		c.LambdaS3Prefix = "app/lambdas"
		assert.NoError(t, c.Validate())
	})
	t.Run("Should require supplied versions when discovery is disabled", func(t *testing.T) {
		c := &SetVersionConfig{SSMPrefix: "trafficinfo", GetVersions: boolPtr(false)}
		assert.Error(t, c.Validate())
		c.Versions = &PresetVersions{Ecr: map[string]string{"svc-a": "aaa1111"}}
		assert.NoError(t, c.Validate())
	})
	t.Run("Should reject a fallback role without a primary role", func(t *testing.T) {
		c := &SetVersionConfig{SSMPrefix: "trafficinfo", FallbackRole: "deploy-fallback"}
		assert.Error(t, c.Validate())
	})
}

func Test_Toggles(t *testing.T) {
	t.Run("Should default both toggles to true", func(t *testing.T) {
		c := &SetVersionConfig{}
		assert.True(t, c.ShouldGetVersions())
		assert.True(t, c.ShouldSetVersions())
	})
	t.Run("Should honor explicit false values", func(t *testing.T) {
		c := &SetVersionConfig{GetVersions: boolPtr(false), SetVersions: boolPtr(false)}
		assert.False(t, c.ShouldGetVersions())
		assert.False(t, c.ShouldSetVersions())
	})
}
