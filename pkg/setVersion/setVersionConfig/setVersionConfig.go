package setVersionConfig

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"

	"github.com/vydev/pipeline-set-version/pkg/config"
)

const (
	SSMPrefix        = "ssm-prefix"
	RoleToAssume     = "role-to-assume"
	AccountID        = "account-id"
	FallbackRole     = "fallback-role"
	EcrRepositories  = "ecr-repositories"
	LambdaNames      = "lambda-names"
	LambdaS3Bucket   = "lambda-s3-bucket"
	LambdaS3Prefix   = "lambda-s3-prefix"
	FrontendNames    = "frontend-names"
	FrontendS3Bucket = "frontend-s3-bucket"
	FrontendS3Prefix = "frontend-s3-prefix"
)

// Application carries the per-artifact filters of the rich request form.
type Application struct {
	TagFilters []string `json:"tag_filters" yaml:"tag_filters"`
}

// PresetVersions are caller-supplied versions used when version discovery is
// disabled.
type PresetVersions struct {
	Ecr      map[string]string `json:"ecr" yaml:"ecr"`
	Frontend map[string]string `json:"frontend" yaml:"frontend"`
	Lambda   map[string]string `json:"lambda" yaml:"lambda"`
}

// SetVersionConfig is the inbound request: which artifacts to resolve, where
// to find them, and where to publish the versions.
type SetVersionConfig struct {
	SSMPrefix string `json:"ssm_prefix" yaml:"ssm_prefix"`

	RoleToAssume string `json:"role_to_assume" yaml:"role_to_assume"`
	AccountID    string `json:"account_id" yaml:"account_id"`
	FallbackRole string `json:"fallback_role" yaml:"fallback_role"`

	EcrApplications map[string]Application `json:"ecr_applications" yaml:"ecr_applications"`
	// Legacy flat-list form, converted by Normalize.
	EcrRepositories    []string `json:"ecr_repositories" yaml:"ecr_repositories"`
	EcrImageTagFilters []string `json:"ecr_image_tag_filters" yaml:"ecr_image_tag_filters"`

	LambdaApplications map[string]Application `json:"lambda_applications" yaml:"lambda_applications"`
	LambdaNames        []string               `json:"lambda_names" yaml:"lambda_names"`
	LambdaS3Bucket     string                 `json:"lambda_s3_bucket" yaml:"lambda_s3_bucket"`
	LambdaS3Prefix     string                 `json:"lambda_s3_prefix" yaml:"lambda_s3_prefix"`

	FrontendApplications map[string]Application `json:"frontend_applications" yaml:"frontend_applications"`
	FrontendNames        []string               `json:"frontend_names" yaml:"frontend_names"`
	FrontendS3Bucket     string                 `json:"frontend_s3_bucket" yaml:"frontend_s3_bucket"`
	FrontendS3Prefix     string                 `json:"frontend_s3_prefix" yaml:"frontend_s3_prefix"`

	// GetVersions and SetVersions toggle resolve-only vs publish-only runs.
	// Unset means true.
	GetVersions *bool `json:"get_versions" yaml:"get_versions"`
	SetVersions *bool `json:"set_versions" yaml:"set_versions"`

	Versions *PresetVersions `json:"versions" yaml:"versions"`

	Debug bool `json:"debug" yaml:"debug"`
}

func (c *SetVersionConfig) ShouldGetVersions() bool {
	return c.GetVersions == nil || *c.GetVersions
}

func (c *SetVersionConfig) ShouldSetVersions() bool {
	return c.SetVersions == nil || *c.SetVersions
}

// Normalize converts the legacy flat-list request form into the per-artifact
// application maps. Explicit application maps win over legacy lists.
func (c *SetVersionConfig) Normalize() {
	if len(c.EcrApplications) == 0 && len(c.EcrRepositories) > 0 {
		c.EcrApplications = make(map[string]Application, len(c.EcrRepositories))
		for _, name := range c.EcrRepositories {
			c.EcrApplications[name] = Application{TagFilters: c.EcrImageTagFilters}
		}
	}
	if len(c.LambdaApplications) == 0 && len(c.LambdaNames) > 0 {
		c.LambdaApplications = make(map[string]Application, len(c.LambdaNames))
		for _, name := range c.LambdaNames {
			c.LambdaApplications[name] = Application{}
		}
	}
	if len(c.FrontendApplications) == 0 && len(c.FrontendNames) > 0 {
		c.FrontendApplications = make(map[string]Application, len(c.FrontendNames))
		for _, name := range c.FrontendNames {
			c.FrontendApplications[name] = Application{}
		}
	}
}

func (c *SetVersionConfig) Validate() error {
	var allErrors field.ErrorList
	if c.ShouldSetVersions() && c.SSMPrefix == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("ssm_prefix"), "ssm_prefix is required when publishing versions"))
	}
	if (c.RoleToAssume == "") != (c.AccountID == "") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("role_to_assume"), c.RoleToAssume, "role_to_assume and account_id are required together"))
	}
	if c.FallbackRole != "" && c.RoleToAssume == "" {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fallback_role"), c.FallbackRole, "fallback_role requires role_to_assume"))
	}
	if len(c.LambdaApplications) > 0 && (c.LambdaS3Bucket == "" || c.LambdaS3Prefix == "") {
		allErrors = append(allErrors, field.Required(field.NewPath("lambda_s3_bucket"), "lambda_s3_bucket and lambda_s3_prefix are required with lambda applications"))
	}
	if len(c.FrontendApplications) > 0 && (c.FrontendS3Bucket == "" || c.FrontendS3Prefix == "") {
		allErrors = append(allErrors, field.Required(field.NewPath("frontend_s3_bucket"), "frontend_s3_bucket and frontend_s3_prefix are required with frontend applications"))
	}
	if !c.ShouldGetVersions() && c.Versions == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("versions"), "versions are required when get_versions is false"))
	}
	return allErrors.ToAggregate()
}

func NewSetVersionConfigFromJsonBytes(data []byte) (*SetVersionConfig, error) {
	var c SetVersionConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal SetVersionConfig from JSON")
	}
	return &c, nil
}

func NewSetVersionConfigFromYamlBytes(data []byte) (*SetVersionConfig, error) {
	var c SetVersionConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal SetVersionConfig from YAML")
	}
	return &c, nil
}

// NewSetVersionConfig builds a config from bound flags and environment
// variables for runs without a config file.
func NewSetVersionConfig() *SetVersionConfig {
	return &SetVersionConfig{
		Debug:              viper.GetBool(config.NormalizeFlagName(config.Debug)),
		SSMPrefix:          viper.GetString(config.NormalizeFlagName(SSMPrefix)),
		RoleToAssume:       viper.GetString(config.NormalizeFlagName(RoleToAssume)),
		AccountID:          viper.GetString(config.NormalizeFlagName(AccountID)),
		FallbackRole:       viper.GetString(config.NormalizeFlagName(FallbackRole)),
		EcrRepositories:    viper.GetStringSlice(config.NormalizeFlagName(EcrRepositories)),
		LambdaNames:        viper.GetStringSlice(config.NormalizeFlagName(LambdaNames)),
		LambdaS3Bucket:     viper.GetString(config.NormalizeFlagName(LambdaS3Bucket)),
		LambdaS3Prefix:     viper.GetString(config.NormalizeFlagName(LambdaS3Prefix)),
		FrontendNames:      viper.GetStringSlice(config.NormalizeFlagName(FrontendNames)),
		FrontendS3Bucket:   viper.GetString(config.NormalizeFlagName(FrontendS3Bucket)),
		FrontendS3Prefix:   viper.GetString(config.NormalizeFlagName(FrontendS3Prefix)),
		EcrImageTagFilters: viper.GetStringSlice("ecr_image_tag_filters"),
	}
}
