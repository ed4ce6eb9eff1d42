// validate.go implements `awsdeploy validate`: load the deployfile and report what a run would do.
package main

import (
	"fmt"

	"github.com/example/awsdeploy/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the deployfile without running the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "%s is valid\n", *configPath)
			fmt.Fprintf(out, "  packages:         %d\n", len(cfg.Packages))
			fmt.Fprintf(out, "  stacks:           %d\n", len(cfg.Stacks))
			fmt.Fprintf(out, "  static artifacts: %d\n", len(cfg.StaticArtifacts))
			fmt.Fprintf(out, "  steps enabled:    tests=%t packages=%t upload=%t stacks=%t outputs=%t static=%t\n",
				cfg.Options.RunUnitTestsEnabled(),
				cfg.Options.MakePackagesEnabled(),
				cfg.Options.UploadPackagesEnabled(),
				cfg.Options.CreateStacksEnabled(),
				cfg.Options.CollectStackOutputsEnabled(),
				cfg.Options.UploadStaticArtifactsEnabled())
			return nil
		},
	}
}
