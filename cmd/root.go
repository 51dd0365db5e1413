// Package cmd implements the camel command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "camel",
	Short: "camel - chat with your data from the terminal",
	Long: `camel is a terminal client for the camelAI session protocol.
It streams assistant turns as they are produced, including tool-call
progress, and renders the final answers as markdown.

Running camel with no arguments starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
