package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "Websocket relay between chat clients and a streaming completion API",
		Long: `chatrelay relays chat turns between websocket clients and an
OpenAI-compatible streaming completion endpoint, persisting every turn to
SQLite and replaying a session's history when a client reconnects.

Configuration is read from the environment (HTTP_PORT, DATABASE_URL,
LLM_BASE_URL, LLM_API_KEY, LLM_MODEL, CHATRELAY_MODE, LOG_LEVEL, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newNormalizeCmd())
	cmd.AddCommand(newChatCmd())

	return cmd
}
