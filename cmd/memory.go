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

	"github.com/spf13/cobra"
)

var memoryStage string

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage the chunk translation memory",
	Long:  `The translation memory keeps successful chunk translations per stage and provider so re-runs reuse them.`,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove translation memory entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearMemory(cmd.Context(), memoryStage)
		if err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
		fmt.Printf("Cleared %d entries from translation memory.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd)

	memoryCmd.PersistentFlags().StringVar(&memoryStage, "stage", "", "Clear only one stage (default all)")
	memoryCmd.AddCommand(memoryClearCmd)
}
