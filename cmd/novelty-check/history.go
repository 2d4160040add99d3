package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inventa-labs/noveltycheck/internal/config"
	"github.com/inventa-labs/noveltycheck/internal/memorylog"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past novelty checks for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		projectID, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")

		cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		store, err := memorylog.New(cfg.MemoryDBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context(), userID, projectID, limit)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	historyCmd.Flags().String("user", "", "user id")
	historyCmd.Flags().String("project", "", "project id")
	historyCmd.Flags().Int("limit", 20, "maximum entries to return")

	rootCmd.AddCommand(historyCmd)
}
