// main.go bootstraps awsdeploy: it builds the root Cobra command and executes it with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	logLevel := "info"
	var profile string
	cmd := &cobra.Command{
		Use:           "awsdeploy",
		Short:         "Declarative CloudFormation/S3 deployment pipeline",
		Long:          "awsdeploy packages application source into zip artifacts, uploads them to S3, creates CloudFormation stacks, and publishes static assets, all driven by a single declarative deployfile.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deploy.yaml", "Path to the deployfile")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for awsdeploy output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS shared-config profile for provider clients (overrides the deployfile)")
	deployCmd := newDeployCommand(&configPath, &logLevel, &profile)
	validateCmd := newValidateCommand(&configPath)
	cmd.AddCommand(deployCmd, validateCmd, newVersionCommand())
	bindViper(cmd, deployCmd, validateCmd)
	return cmd
}

// bindViper lets AWSDEPLOY_* environment variables stand in for flags that
// were not set on the command line.
func bindViper(commands ...*cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("AWSDEPLOY")
	v.AutomaticEnv()
	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
}
