package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/famline/famline/internal/config"
	"github.com/famline/famline/internal/portal"
	"github.com/famline/famline/internal/session"
)

var linesFormat string

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "List the lines on the family plan without fetching usage",
	RunE:  runLines,
}

func init() {
	linesCmd.Flags().StringVarP(&linesFormat, "format", "f", "human", "Output format: human or machine")
	rootCmd.AddCommand(linesCmd)
}

func runLines(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return fmt.Errorf("portal credentials are required")
	}

	sess, err := session.NewManager(
		session.Config{
			BaseURL:   cfg.Portal.BaseURL,
			Timeout:   cfg.PortalTimeout(),
			UserAgent: cfg.Portal.UserAgent,
		},
		session.Credentials{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
		logger,
	)
	if err != nil {
		return err
	}
	if err := sess.Authenticate(ctx); err != nil {
		return err
	}

	client := portal.NewClient(sess, portal.Config{MaxParallel: 1}, logger)
	lines, err := client.ListLines(ctx)
	if err != nil {
		return err
	}

	switch linesFormat {
	case "machine":
		out, err := json.MarshalIndent(lines, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case "human":
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NUMBER\tID\tTYPE\tLABEL")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Number, l.ID, l.Type, l.Label)
		}
		w.Flush()
	default:
		return fmt.Errorf("invalid output format: %s", linesFormat)
	}

	return nil
}
