/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsStage string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long:  `List, summarise and query the per-chapter outcomes recorded by the raw and edit stages.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded chapter runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), runsStage, runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTAGE\tCHAPTER\tSTATUS\tCHUNKS\tDURATION\tWHEN\tERROR")
		for _, r := range runs {
			errText := r.Error
			if len(errText) > 60 {
				errText = errText[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
				shortID(r.RunID), r.Stage, r.Chapter, r.Status, r.Chunks,
				r.Duration.Round(100*time.Millisecond), r.CreatedAt.Format("2006-01-02 15:04"), errText)
		}
		return w.Flush()
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run ledger and translation memory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(cmd.Context(), runsStage)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Chapter runs:    %d\n", stats.Runs)
		fmt.Printf("  done:          %d\n", stats.DoneRuns)
		fmt.Printf("  skipped:       %d\n", stats.SkippedRuns)
		fmt.Printf("  failed:        %d\n", stats.FailedRuns)
		fmt.Printf("Memory entries:  %d\n", stats.MemoryEntries)
		fmt.Printf("Memory usage:    %d\n", stats.MemoryUsage)
		return nil
	},
}

var runsFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List chapters whose last run failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsStage == "" {
			return fmt.Errorf("--stage is required")
		}
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		chapters, err := db.FailedChapters(cmd.Context(), runsStage)
		if err != nil {
			return fmt.Errorf("failed to query failed chapters: %w", err)
		}
		if len(chapters) == 0 {
			fmt.Println("No failed chapters.")
			return nil
		}
		parts := make([]string, len(chapters))
		for i, n := range chapters {
			parts[i] = fmt.Sprint(n)
		}
		fmt.Println(strings.Join(parts, " "))
		return nil
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <chapter>",
	Short: "Show the last recorded status of a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsStage == "" {
			return fmt.Errorf("--stage is required")
		}
		n, err := parseChapter(args[0])
		if err != nil {
			return err
		}
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		status, found, err := db.LastStatus(cmd.Context(), runsStage, n)
		if err != nil {
			return fmt.Errorf("failed to query status: %w", err)
		}
		if !found {
			fmt.Printf("Chapter %d has no %s runs.\n", n, runsStage)
			return nil
		}
		fmt.Printf("Chapter %d (%s): %s\n", n, runsStage, status)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.PersistentFlags().StringVar(&runsStage, "stage", "", "Limit to one stage (raw or edit)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 50, "Maximum rows to show (0 = all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsFailedCmd)
	runsCmd.AddCommand(runsStatusCmd)
}
