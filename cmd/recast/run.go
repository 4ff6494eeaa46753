package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abdulachik/recast/internal/app"
	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/pipeline"
)

var (
	runAccount string
	runEdition string
	runTypes   []string
	runPublish bool
	runQueue   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Repurpose one newsletter edition",
	Long: `Fetch a newsletter edition, split it into sections and generate
posts of the requested content types. With --publish the posts are also
published to the account's platforms.

Content types: precta_tweet, postcta_tweet, thread_tweet, long_form_tweet,
long_form_post, carousel_tweet, carousel_post.

Examples:
  recast run --account acme --edition https://acme.beehiiv.com/p/issue-42 --types thread_tweet
  recast run --account acme --edition https://... --types precta_tweet,carousel_post --publish
  recast run --account acme --edition https://... --types thread_tweet --queue`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAccount, "account", "", "Account ID (required)")
	runCmd.Flags().StringVar(&runEdition, "edition", "", "Edition URL (required)")
	runCmd.Flags().StringSliceVar(&runTypes, "types", []string{string(content.TypeThreadTweet)}, "Content types to generate")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "Publish the generated posts")
	runCmd.Flags().BoolVar(&runQueue, "queue", false, "Queue the run for the serve daemon instead of running it now")
	_ = runCmd.MarkFlagRequired("account")
	_ = runCmd.MarkFlagRequired("edition")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	types, err := content.ParseTypes(runTypes)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return fmt.Errorf("%w: at least one content type is required", content.ErrConfiguration)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if runQueue {
		return queueRun(ctx, cfg, types)
	}

	if runPublish {
		err = cfg.ValidateForPublishing()
	} else {
		err = cfg.ValidateForGeneration()
	}
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer a.Close()

	res := a.Runner.Run(ctx, pipeline.Request{
		AccountID:    runAccount,
		EditionURL:   runEdition,
		ContentTypes: types,
		Publish:      runPublish,
	})

	printResult(res)

	if ok, msg := res.OK(); !ok {
		return fmt.Errorf("run failed: %s", msg)
	}
	return nil
}

func queueRun(ctx context.Context, cfg *config.Config, types []content.Type) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if _, err := store.GetAccount(ctx, runAccount); err != nil {
		return fmt.Errorf("load account %s: %w", runAccount, err)
	}

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	id := uuid.NewString()
	err = store.CreateRun(ctx, db.CreateRunParams{
		ID:           id,
		AccountID:    runAccount,
		EditionURL:   runEdition,
		ContentTypes: strings.Join(names, ","),
		Publish:      runPublish,
	})
	if err != nil {
		return fmt.Errorf("queue run: %w", err)
	}

	slog.Info("queued run", "run_id", id, "account", runAccount, "types", strings.Join(names, ","))
	fmt.Printf("Queued run %s\n", id)
	return nil
}

func printResult(res *pipeline.Result) {
	fmt.Println()
	fmt.Printf("=== Run %s ===\n", res.RunID)
	fmt.Printf("Status: %s\n", res.Status)
	fmt.Printf("Message: %s\n", res.Message)

	for _, u := range res.Units {
		fmt.Println()
		fmt.Printf("--- Post %d (%s) ---\n", u.PostNumber, u.Type)
		if u.Err != nil {
			fmt.Printf("Error: %v\n", u.Err)
		}
		if len(u.Unit.Items) > 0 {
			printUnit(os.Stdout, u.Unit)
		}
		if len(u.Violations) > 0 {
			fmt.Printf("Repaired %d budget violations\n", len(u.Violations))
		}
		if u.Publish != nil {
			for _, it := range u.Publish.Items {
				if it.URL != "" {
					fmt.Printf("Posted: %s\n", it.URL)
				}
			}
		}
	}
	fmt.Println()
}
