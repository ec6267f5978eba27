package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/famline/famline/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the famline configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		red.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	if configPath == "" {
		green.Fprintln(os.Stdout, "Configuration is valid (defaults and environment only)")
	} else {
		green.Fprintf(os.Stdout, "Configuration is valid: %s\n", configPath)
	}

	fmt.Fprintf(os.Stdout, "Portal:        %s (timeout %s, %d parallel fetches)\n",
		cfg.Portal.BaseURL, cfg.Portal.Timeout, cfg.Portal.MaxParallel)
	fmt.Fprintf(os.Stdout, "Output:        %s\n", cfg.Output.Format)
	fmt.Fprintf(os.Stdout, "Watch:         every %s, metrics on %s:%d\n",
		cfg.Watch.Interval, cfg.Watch.BindAddress, cfg.Watch.MetricsPort)

	if cfg.Credentials.Username == "" {
		yellow.Fprintln(os.Stdout, "Warning: no credentials configured; set credentials in the config file or FAMLINE_CREDENTIALS_USERNAME / FAMLINE_CREDENTIALS_PASSWORD")
	} else {
		fmt.Fprintf(os.Stdout, "Credentials:   %s (password %s)\n",
			cfg.Credentials.Username, redacted(cfg.Credentials.Password))
	}

	return nil
}

// redacted never reveals the secret, only whether one is present.
func redacted(secret string) string {
	if secret == "" {
		return "not set"
	}
	return "set"
}
