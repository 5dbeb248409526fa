package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vydev/pipeline-set-version/pkg/config"
	"github.com/vydev/pipeline-set-version/pkg/logger"
	"github.com/vydev/pipeline-set-version/pkg/setVersion"
	"github.com/vydev/pipeline-set-version/pkg/setVersion/setVersionConfig"
)

func handler(ctx context.Context, event json.RawMessage) (*setVersion.Result, error) {
	cfg, err := setVersionConfig.NewSetVersionConfigFromJsonBytes(event)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}
	defer func() { _ = log.Sync() }()
	log.Info("Lambda triggered", zap.ByteString("event", event))

	region := os.Getenv(config.AWSRegionEnvVar)
	if region == "" {
		return nil, errors.Errorf("environment variable %s is required", config.AWSRegionEnvVar)
	}

	sv, err := setVersion.NewDefaultSetVersion(cfg, region, nil, log)
	if err != nil {
		return nil, err
	}
	result, err := sv.Run(ctx)
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		return nil, err
	}
	return result, nil
}

func main() {
	lambda.Start(handler)
}
