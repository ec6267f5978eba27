package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/famline/famline/internal/config"
	"github.com/famline/famline/internal/report"
	"github.com/famline/famline/internal/runner"
)

var (
	reportFormat  string
	reportSaveRaw string
	reportForce   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch usage for all lines and print the family report",
	Long: `Authenticate against the self-care portal, fetch the usage of every line
on the family plan and print a consolidated report. Lines whose usage cannot
be retrieved are shown with an explicit unavailable marker instead of
aborting the whole run.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "", "Output format: human or machine (overrides config)")
	reportCmd.Flags().StringVar(&reportSaveRaw, "save-raw", "", "Directory to dump each line's raw portal payload as <number>.json")
	reportCmd.Flags().BoolVar(&reportForce, "force", false, "Overwrite existing files in the --save-raw directory")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if reportFormat != "" {
		cfg.Output.Format = reportFormat
	}
	if !cfg.Output.Color {
		color.NoColor = true
	}

	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg, runner.Options{}, logger)
	if err != nil {
		return err
	}

	res, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if reportSaveRaw != "" {
		if err := saveRawPayloads(res, reportSaveRaw, reportForce); err != nil {
			return err
		}
	}

	out, err := report.Render(res.Report, report.Format(cfg.Output.Format))
	if err != nil {
		return err
	}

	fmt.Print(out)
	return nil
}

// saveRawPayloads dumps each line's raw portal payload to <number>.json in
// dir, refusing to overwrite existing files unless force is set.
func saveRawPayloads(res *runner.Result, dir string, force bool) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("save-raw path %s is not a valid directory", dir)
	}

	for _, lr := range res.Results {
		if lr.Raw == nil {
			continue
		}
		path := filepath.Join(dir, lr.Line.Number+".json")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("file %s already exists, use --force to overwrite", path)
		}
		if err := os.WriteFile(path, lr.Raw, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
