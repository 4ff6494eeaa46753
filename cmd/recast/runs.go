package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/abdulachik/recast/internal/app"
	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/validator"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long: `List recent runs with their status.

Examples:
  recast runs              # Newest 20 runs
  recast runs show <id>    # Units generated by one run`,
	RunE: runRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the units generated by a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %-20s  %-10s  %s  %s\n",
			r.ID, r.Status, r.AccountID, r.CreatedAt.Format("2006-01-02 15:04"), r.ContentTypes)
		if r.Message != "" {
			fmt.Printf("    %s\n", r.Message)
		}
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get run %s: %w", args[0], err)
	}
	units, err := store.ListUnitsByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}

	fmt.Printf("=== Run %s ===\n", run.ID)
	fmt.Printf("Account: %s\n", run.AccountID)
	fmt.Printf("Edition: %s\n", run.EditionURL)
	fmt.Printf("Status:  %s\n", run.Status)
	if run.Message != "" {
		fmt.Printf("Message: %s\n", run.Message)
	}

	for _, row := range units {
		fmt.Println()
		fmt.Printf("--- Post %d (%s, %s) ---\n", row.PostNumber, row.ContentType, row.Status)
		if row.Error != "" {
			fmt.Printf("Error: %s\n", row.Error)
		}
		if row.Envelope == "" {
			continue
		}
		ct, err := content.ParseType(row.ContentType)
		if err != nil {
			fmt.Printf("Unreadable unit: %v\n", err)
			continue
		}
		u, err := envelope.Decode(row.Envelope, ct)
		if err != nil {
			fmt.Printf("Unreadable unit: %v\n", err)
			continue
		}
		printUnit(os.Stdout, u)
	}
	return nil
}

// printUnit writes every item of u with its budgeted length.
func printUnit(w io.Writer, u content.Unit) {
	limit := u.Type.Rules().MaxChars
	for i, it := range u.Items {
		if it.IsSlide() {
			fmt.Fprintf(w, "[%d] %s (%d/%d)\n", i+1, it.Heading, utf8.RuneCountInString(it.Heading), content.HeadingMaxChars)
			if it.Subheading != "" {
				fmt.Fprintf(w, "    %s (%d/%d)\n", it.Subheading, utf8.RuneCountInString(it.Subheading), content.SubheadingMaxChars)
			}
		} else {
			text := it.PostText()
			n := utf8.RuneCountInString(text)
			if u.Type.Platform() == content.PlatformTwitter {
				n = validator.TweetLength(text)
			}
			fmt.Fprintf(w, "[%d] %s (%d/%d chars)\n", i+1, it.PostType, n, limit)
			fmt.Fprintln(w, text)
		}
		for _, img := range it.Images {
			fmt.Fprintf(w, "    image: %s\n", img)
		}
	}
}
