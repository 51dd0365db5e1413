package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qaml-ai/camel-go/internal/config"
	"github.com/qaml-ai/camel-go/internal/log"
	"github.com/qaml-ai/camel-go/internal/stream"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show suggested questions for the configured data sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		api, err := stream.NewAPIClient(stream.APIConfig{
			BaseURL:     cfg.API.BaseURL,
			Credentials: stream.StaticCredential(cfg.API.Token),
			Logger:      log.New(log.Config{Level: log.ParseLevel(cfg.Log.Level)}),
		})
		if err != nil {
			return err
		}

		suggestions, err := api.Recommendations(cmd.Context(), cfg.API.Sources)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(suggestions) == 0 {
			fmt.Fprintln(out, "no suggestions available")
			return nil
		}
		for _, s := range suggestions {
			fmt.Fprintf(out, "- %s\n", s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}
