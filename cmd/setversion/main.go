package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vydev/pipeline-set-version/pkg/config"
	"github.com/vydev/pipeline-set-version/pkg/setVersion/setVersionConfig"
)

var rootCmd = &cobra.Command{
	Use:   "setversion",
	Short: "Publish the newest artifact versions to the parameter store",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var configFile string
var Config *setVersionConfig.SetVersionConfig

func init() {
	cobra.OnInitialize(initConfigIfPresent)

	rootCmd.PersistentFlags().StringVar(&configFile, config.ConfigFile, "", "config file path (JSON or YAML)")
	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(setVersionConfig.SSMPrefix, "", "parameter store namespace")
	rootCmd.PersistentFlags().String(setVersionConfig.RoleToAssume, "", "role to assume for parameter writes")
	rootCmd.PersistentFlags().String(setVersionConfig.AccountID, "", "account owning the role to assume")
	rootCmd.PersistentFlags().String(setVersionConfig.FallbackRole, "", "fallback role when assumption is exhausted")
	rootCmd.PersistentFlags().StringSlice(setVersionConfig.EcrRepositories, nil, "ECR repositories to resolve")
	rootCmd.PersistentFlags().StringSlice(setVersionConfig.LambdaNames, nil, "lambda functions to resolve")
	rootCmd.PersistentFlags().String(setVersionConfig.LambdaS3Bucket, "", "bucket holding lambda packages")
	rootCmd.PersistentFlags().String(setVersionConfig.LambdaS3Prefix, "", "prefix holding lambda packages")
	rootCmd.PersistentFlags().StringSlice(setVersionConfig.FrontendNames, nil, "frontends to resolve")
	rootCmd.PersistentFlags().String(setVersionConfig.FrontendS3Bucket, "", "bucket holding frontend bundles")
	rootCmd.PersistentFlags().String(setVersionConfig.FrontendS3Prefix, "", "prefix holding frontend bundles")

	viper.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
}

func initConfigIfPresent() {
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			panic(err)
		}
		var cfg *setVersionConfig.SetVersionConfig
		if filepath.Ext(configFile) == ".json" {
			cfg, err = setVersionConfig.NewSetVersionConfigFromJsonBytes(data)
		} else {
			cfg, err = setVersionConfig.NewSetVersionConfigFromYamlBytes(data)
		}
		if err != nil {
			panic(err)
		}
		Config = cfg
	} else {
		Config = setVersionConfig.NewSetVersionConfig()
	}
}

func main() {
	Execute()
}
