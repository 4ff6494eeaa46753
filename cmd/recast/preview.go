package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/validator"
)

var previewType string

var previewCmd = &cobra.Command{
	Use:   "preview <envelope-file>",
	Short: "Validate and preview a unit envelope",
	Long: `Read a unit envelope (as stored by a run or written by hand), repair
it against the platform budgets and print the result.

Use - to read from stdin.

Examples:
  recast preview unit.txt --type thread_tweet
  cat slides.txt | recast preview - --type carousel_tweet`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVar(&previewType, "type", "", "Content type of the envelope (required)")
	_ = previewCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	ct, err := content.ParseType(previewType)
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}

	u, err := envelope.DecodeLenient(string(data), ct)
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	repaired, report := validator.Validate(u)
	printUnit(os.Stdout, repaired)

	if report.OK() {
		fmt.Println("\nWithin budget.")
		return nil
	}
	fmt.Printf("\nRepaired %d violations:\n", len(report.Violations))
	for _, v := range report.Violations {
		fmt.Printf("  %s\n", v.Error())
	}
	return nil
}
