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
	"github.com/spf13/cobra"

	"github.com/valpere/chaptran/internal/config"
)

var rawFlags stageFlags

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Produce raw translations of the source chapters",
	Long: `Translate every chapter in <base-dir>/raw_chinese into
<base-dir>/raw_vietnamese using the rules in TRANSLATOR.md.

Chapters are split into chunks on line boundaries (--chunk-size) and each
chunk is sent on its own, or grouped into batched requests with
--batch-size (1-10) through the batchexecute provider.

Chapters with existing output are skipped unless --force is given.

Environment: STEP2_API_KEY, STEP2_API_BASE, STEP2_MODEL.

Examples:
  chaptran raw
  chaptran raw --chapter chapter_0012.md --force
  chaptran raw --batch-size 5 --chunk-size 1500`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), config.StageRaw, &rawFlags)
	},
}

func init() {
	rootCmd.AddCommand(rawCmd)
	addStageFlags(rawCmd, config.StageRaw, &rawFlags)
}
