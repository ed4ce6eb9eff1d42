// deploy.go implements `awsdeploy deploy`: one end-to-end run of the deployment pipeline.
package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/awsdeploy/internal/config"
	"github.com/example/awsdeploy/internal/logging"
	"github.com/example/awsdeploy/internal/pipeline"
	"github.com/example/awsdeploy/internal/provision"
	"github.com/example/awsdeploy/internal/publish"
	"github.com/example/awsdeploy/internal/testrunner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDeployCommand(configPath, logLevel, profile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Run the deployment pipeline described by the deployfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if *profile != "" {
				cfg.AWS.Profile = *profile
			}
			log, err := logging.New(*logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			engine := pipeline.New(cfg, log, cmd.OutOrStdout(), testrunner.New(log), newClientFactory(log))
			if engine.Run(cmd.Context()) == pipeline.Failed {
				return fmt.Errorf("deployment pipeline failed")
			}
			return nil
		},
	}
}

// newClientFactory builds the CloudFormation and S3 clients once per run.
// The shared-config profile is passed to client construction explicitly;
// the process environment is never mutated.
func newClientFactory(log *zap.Logger) pipeline.ClientFactory {
	return func(ctx context.Context, profile string) (pipeline.Clients, error) {
		var optFns []func(*awsconfig.LoadOptions) error
		if profile != "" {
			optFns = append(optFns, awsconfig.WithSharedConfigProfile(profile))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return pipeline.Clients{}, fmt.Errorf("load AWS config: %w", err)
		}
		return pipeline.Clients{
			Provisioner: provision.New(cloudformation.NewFromConfig(cfg), log),
			Uploader:    publish.New(s3.NewFromConfig(cfg), log),
		}, nil
	}
}
