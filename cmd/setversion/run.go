package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/config"
	"github.com/vydev/pipeline-set-version/pkg/logger"
	"github.com/vydev/pipeline-set-version/pkg/setVersion"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one version-sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		initRunCmd(cmd)

		log, _ := logger.NewLogger(&logger.LoggerConfig{Debug: Config.Debug})
		defer func() { _ = log.Sync() }()

		region := os.Getenv(config.AWSRegionEnvVar)
		if region == "" {
			return errors.Errorf("environment variable %s is required", config.AWSRegionEnvVar)
		}

		sv, err := setVersion.NewDefaultSetVersion(Config, region, nil, log)
		if err != nil {
			return err
		}
		result, err := sv.Run(cmd.Context())
		if err != nil {
			log.Error("Run failed", zap.Error(err))
			return err
		}

		out, err := json.Marshal(result)
		if err != nil {
			return errors.Wrap(err, "failed to marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s': %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s': %+v\n", f.Name, err)
		}
	})
}
