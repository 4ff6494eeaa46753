package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/abdulachik/recast/internal/app"
	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/stylestore"
)

var (
	archiveLimit    int
	archivePlatform string
	archiveK        int
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the style archive",
	Long: `Manage the vector archive of published posts the personalizer draws
writing samples from.

Uses the embedding provider configured in veclite.yaml.

Examples:
  recast archive backfill acme                  # Index posts already recorded in the database
  recast archive search acme "hiring mistakes"  # Show the nearest archived posts`,
}

var archiveBackfillCmd = &cobra.Command{
	Use:   "backfill <account-id>",
	Short: "Index an account's published posts",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveBackfill,
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search <account-id> <query>",
	Short: "Search an account's archived posts",
	Args:  cobra.ExactArgs(2),
	RunE:  runArchiveSearch,
}

func init() {
	archiveCmd.PersistentFlags().StringVar(&archivePlatform, "platform", string(content.PlatformTwitter), "Platform (twitter or linkedin)")
	archiveBackfillCmd.Flags().IntVar(&archiveLimit, "limit", 500, "Maximum number of posts to index")
	archiveSearchCmd.Flags().IntVarP(&archiveK, "top", "k", 3, "Number of results")
	archiveCmd.AddCommand(archiveBackfillCmd)
	archiveCmd.AddCommand(archiveSearchCmd)
	rootCmd.AddCommand(archiveCmd)
}

func archivePlatformFlag() (content.Platform, error) {
	switch p := content.Platform(archivePlatform); p {
	case content.PlatformTwitter, content.PlatformLinkedIn:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown platform %q", content.ErrConfiguration, archivePlatform)
}

func openArchive(cfg *config.Config) (*stylestore.Archive, error) {
	archive, err := stylestore.Open(stylestore.Config{
		Path:       cfg.StyleIndexPath,
		ConfigPath: cfg.VecLiteConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("open style archive: %w", err)
	}
	return archive, nil
}

func runArchiveBackfill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	platform, err := archivePlatformFlag()
	if err != nil {
		return err
	}

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

	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	posts, err := store.ListPublishedByAccount(ctx, args[0], string(platform), archiveLimit)
	if err != nil {
		return fmt.Errorf("list published posts: %w", err)
	}

	before := archive.Count()
	indexed := 0
	for _, p := range posts {
		if err := archive.Add(ctx, p.AccountID, platform, p.Text); err != nil {
			slog.Warn("failed to archive post", "post_id", p.PostID, "error", err)
			continue
		}
		indexed++
	}
	if err := archive.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}

	slog.Info("backfill complete",
		"account", args[0],
		"platform", platform,
		"indexed", indexed,
		"archive_before", before,
		"archive_after", archive.Count(),
	)
	return nil
}

func runArchiveSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	platform, err := archivePlatformFlag()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	hits, err := archive.Search(ctx, args[0], platform, args[1], archiveK)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No archived posts found.")
		return nil
	}

	for i, h := range hits {
		fmt.Printf("%d. (%.3f)\n%s\n\n", i+1, h.Score, h.Text)
	}
	return nil
}
