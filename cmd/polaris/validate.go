package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"polaris-hq/polaris/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the gateway.

All validation errors are reported together, with the dotted field path
of each offending value. Secret references ("env:NAME") are not
resolved, so validation does not require the secrets to be present.

Examples:
  # Validate the default config
  polaris validate

  # Validate a specific file
  polaris validate --config /etc/polaris/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Println("Configuration is invalid:")
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s\n", fe.Error())
			}
			return fmt.Errorf("%d validation errors", len(verr.Errors))
		}
		return err
	}

	fmt.Printf("Configuration valid: %d endpoints, %d federated models, %d api keys\n",
		len(cfg.Endpoints), len(cfg.FederatedModels), len(cfg.APIKeys))
	return nil
}
