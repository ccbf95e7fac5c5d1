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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valpere/chaptran/internal/artifact"
	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/retry"
	"github.com/valpere/chaptran/internal/scraper"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <index.html> [max]",
	Short: "Download source chapters listed in a saved index page",
	Long: `Read a saved table-of-contents page, collect every link titled like
"第12章 ..." and download each chapter into <base-dir>/raw_chinese.

Relative links are resolved against --source-url (BOOK_SOURCE_URL). The
optional max limits how many links are fetched. Chapters already on disk
are skipped unless --force is given.

Example:
  chaptran fetch index.html 50`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid max %q", args[1])
			}
			limit = n
		}
		if err := cfg.Validate(config.StageFetch); err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open index file: %w", err)
		}
		links, err := scraper.ParseIndex(f, cfg.Fetch.SourceURL)
		f.Close()
		if err != nil {
			return err
		}
		if len(links) == 0 {
			logger.Warn("no chapter links found", "file", args[0])
			return nil
		}
		logger.Info("found chapter links", "count", len(links), "file", args[0])

		out := artifact.Open(cfg.BaseDir, artifact.StageSource)
		rc := retry.New(config.StageFetch, cfg.Fetch.Retry, logger)
		fetcher := scraper.NewFetcher(out, rc, cfg.Fetch.Delay, cfg.Fetch.Timeout, logger.With("stage", config.StageFetch))

		res, err := fetcher.Run(cmd.Context(), links, limit, fetchForce)
		fmt.Printf("Fetched %d/%d chapters (%d skipped, %d failed)\n", res.Saved, res.Total, res.Skipped, res.Failed)
		return err
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Download chapters even if they already exist")
	fetchCmd.Flags().String("source-url", scraper.DefaultBaseURL, "Site prefix for relative chapter links (BOOK_SOURCE_URL)")
	fetchCmd.Flags().Duration("delay", 0, "Delay between downloads")
	fetchCmd.Flags().Duration("timeout", 0, "Per-request timeout")

	bindFlags(fetchCmd, map[string]string{
		"source-url": "fetch.source_url",
		"delay":      "fetch.delay",
		"timeout":    "fetch.timeout",
	})
}
