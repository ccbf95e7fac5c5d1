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

var editFlags stageFlags

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Polish raw translations using the source as reference",
	Long: `Rewrite every chapter in <base-dir>/raw_vietnamese into
<base-dir>/edited_vietnamese using the rules in EDITOR.md. The matching
source chapter from raw_chinese is sent as reference; when it is missing
the chapter is still edited without one.

Select chapters with --chapter, a --start/--count range, or --failed to
retry the chapters whose last run failed.

Environment: LLM_PROVIDER, LLM_API_KEY, LLM_API_BASE, LLM_MODEL.

Examples:
  chaptran edit
  chaptran edit --start 651 --count 100 --delay 1s
  chaptran edit --failed --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), config.StageEdit, &editFlags)
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	addStageFlags(editCmd, config.StageEdit, &editFlags)
}
