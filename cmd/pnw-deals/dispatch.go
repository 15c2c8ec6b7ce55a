package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bissquit/pnw-deals/internal/app"
	"github.com/bissquit/pnw-deals/internal/newsletter"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type dispatchFlags struct {
	windowDays int
	baseURL    string
	dryRun     bool
	output     string
}

func dispatchCmd(configPath *string) *cobra.Command {
	var flags dispatchFlags

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send the weekly newsletter once",
		Long: `Send the weekly newsletter once and print the run outcome.

Per-subscriber failures are reported in the outcome. The command exits with
status 1 only when the run could not load subscribers or deals.

Examples:
  pnw-deals dispatch --config config.yaml
  pnw-deals dispatch --window-days 14 --output json
  pnw-deals dispatch --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.output != outputText && flags.output != outputJSON {
				return fmt.Errorf("unknown output format %q", flags.output)
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if flags.windowDays > 0 {
				cfg.Newsletter.WindowDays = flags.windowDays
			}
			if flags.baseURL != "" {
				cfg.Newsletter.BaseURL = flags.baseURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outcome, err := app.Dispatch(ctx, cfg, app.DispatchOptions{
				DryRun: flags.dryRun,
				Out:    messageWriter(cmd, flags.output),
			})
			if err != nil {
				return fmt.Errorf("dispatch: %w", err)
			}

			return printOutcome(cmd.OutOrStdout(), outcome, flags.output)
		},
	}

	cmd.Flags().IntVar(&flags.windowDays, "window-days", 0, "days of deals to include (default from config)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "public site URL used in links (default from config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "render messages instead of sending (to stderr with --output json)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputText, "outcome format: text or json")

	return cmd
}

// messageWriter is where dry-run messages go. JSON output keeps stdout for
// the outcome document alone.
func messageWriter(cmd *cobra.Command, format string) io.Writer {
	if format == outputJSON {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

func printOutcome(w io.Writer, outcome *newsletter.Outcome, format string) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", outcome.RunID)
	fmt.Fprintf(tw, "state\t%s\n", outcome.State)
	if outcome.NothingToSend {
		fmt.Fprintln(tw, "result\tno new deals, nothing sent")
	}
	fmt.Fprintf(tw, "subscribers\t%d\n", outcome.Subscribers)
	fmt.Fprintf(tw, "deals\t%d\n", outcome.Deals)
	fmt.Fprintf(tw, "sent\t%d\n", outcome.Sent)
	fmt.Fprintf(tw, "skipped\t%d\n", outcome.Skipped)
	fmt.Fprintf(tw, "failed\t%d\n", len(outcome.Failed))
	fmt.Fprintf(tw, "duration\t%s\n", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
	for _, f := range outcome.Failed {
		fmt.Fprintf(tw, "  %s\t%s\n", f.SubscriberID, f.Reason)
	}
	return tw.Flush()
}
