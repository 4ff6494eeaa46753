package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/abdulachik/recast/internal/app"
	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/db"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
	Long: `Manage the accounts posts are generated for.

Examples:
  recast account import acme.yaml   # Create or update an account
  recast account list               # List accounts and their platforms`,
}

var accountImportCmd = &cobra.Command{
	Use:   "import <profile.yaml>",
	Short: "Create or update an account from a profile file",
	Long: `Create or update an account from a YAML profile file. Platform tokens
in the file are sealed into the credential store; the file itself should be
deleted afterwards.

Example profile:
  id: acme
  display_name: Acme Weekly
  subscribe_url: https://acme.beehiiv.com/subscribe
  examples:
    twitter: |
      Most teams don't have a hiring problem. They have a retention problem.
  credentials:
    twitter:
      access_token: ...
      refresh_token: ...
    linkedin:
      access_token: ...
      author: urn:li:person:abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountImport,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountList,
}

func init() {
	accountCmd.AddCommand(accountImportCmd)
	accountCmd.AddCommand(accountListCmd)
	rootCmd.AddCommand(accountCmd)
}

// profileFile is the YAML layout read by account import.
type profileFile struct {
	ID           string `yaml:"id"`
	DisplayName  string `yaml:"display_name"`
	SubscribeURL string `yaml:"subscribe_url"`
	CustomPrompt string `yaml:"custom_prompt"`
	Examples     struct {
		Twitter  string `yaml:"twitter"`
		LinkedIn string `yaml:"linkedin"`
	} `yaml:"examples"`
	Credentials struct {
		Twitter  *tokenFile `yaml:"twitter"`
		LinkedIn *tokenFile `yaml:"linkedin"`
	} `yaml:"credentials"`
}

type tokenFile struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	Expiry       time.Time `yaml:"expiry"`
	Author       string    `yaml:"author"`
}

func (t *tokenFile) token() *oauth2.Token {
	if t == nil || (t.AccessToken == "" && t.RefreshToken == "") {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       t.Expiry,
	}
}

func loadProfileFile(path string) (*profileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if pf.ID == "" {
		return nil, fmt.Errorf("%w: profile id is required", content.ErrConfiguration)
	}
	return &pf, nil
}

func runAccountImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pf, err := loadProfileFile(args[0])
	if err != nil {
		return err
	}

	hasTokens := pf.Credentials.Twitter.token() != nil || pf.Credentials.LinkedIn.token() != nil
	if hasTokens {
		err = cfg.ValidateForCredentials()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	err = store.UpsertAccount(ctx, db.UpsertAccountParams{
		ID:              pf.ID,
		DisplayName:     pf.DisplayName,
		SubscribeURL:    pf.SubscribeURL,
		CustomPrompt:    pf.CustomPrompt,
		ExampleTwitter:  pf.Examples.Twitter,
		ExampleLinkedIn: pf.Examples.LinkedIn,
	})
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	slog.Info("saved account", "account", pf.ID)

	if !hasTokens {
		return nil
	}

	creds, err := app.OpenCredentials(cfg, store)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	// Update keeps tokens for platforms the file leaves out.
	err = creds.Update(ctx, pf.ID, func(rec *credstore.Record) error {
		if tok := pf.Credentials.Twitter.token(); tok != nil {
			rec.SetToken(content.PlatformTwitter, tok)
		}
		if tok := pf.Credentials.LinkedIn.token(); tok != nil {
			rec.SetToken(content.PlatformLinkedIn, tok)
			rec.LinkedInAuthor = pf.Credentials.LinkedIn.Author
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	slog.Info("sealed credentials", "account", pf.ID)
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
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

	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts. Add one with: recast account import <profile.yaml>")
		return nil
	}

	var creds *credstore.Store
	if cfg.CredentialSecret != "" {
		creds, err = app.OpenCredentials(cfg, store)
		if err != nil {
			slog.Warn("credential store unavailable", "error", err)
		}
	}

	for _, a := range accounts {
		platforms := "-"
		if creds != nil {
			platforms = credentialSummary(ctx, creds, a.ID)
		}
		fmt.Printf("%-16s  %-24s  %s\n", a.ID, a.DisplayName, platforms)
	}
	return nil
}

func credentialSummary(ctx context.Context, creds *credstore.Store, accountID string) string {
	rec, err := creds.Get(ctx, accountID)
	if err != nil {
		return "no credentials"
	}
	var out string
	for _, p := range []content.Platform{content.PlatformTwitter, content.PlatformLinkedIn} {
		if rec.Require(p) == nil {
			if out != "" {
				out += ","
			}
			out += string(p)
		}
	}
	if out == "" {
		return "no credentials"
	}
	return out
}
