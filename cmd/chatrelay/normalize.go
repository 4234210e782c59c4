package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatrelay/internal/config"
	"github.com/xiaot623/gogo/chatrelay/internal/hub"
	"github.com/xiaot623/gogo/chatrelay/internal/logging"
	"github.com/xiaot623/gogo/chatrelay/internal/repository"
	"github.com/xiaot623/gogo/chatrelay/internal/service"
)

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Unwrap message content stored as JSON objects",
		Long: `Rewrite stored messages whose content is a JSON object of the form
{"content": "..."} to the inner string. Running it twice is harmless.`,
		RunE: runNormalize,
	}

	cmd.Flags().Bool("dry-run", false, "Only report how many messages would change")

	return cmd
}

func runNormalize(cmd *cobra.Command, _ []string) error {
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("getting dry-run flag: %w", err)
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stderr)

	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	svc := service.New(store, hub.NewHub(), logger)
	n, err := svc.NormalizeContent(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) would be normalized\n", n)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Normalized %d message(s)\n", n)
	}
	return nil
}
