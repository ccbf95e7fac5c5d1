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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/chaptran/internal/config"
	"github.com/valpere/chaptran/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile string

	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	closeLog = func() error { return nil }

	// flagKeys maps each command's flags to the config keys they override.
	flagKeys = map[*cobra.Command]map[string]string{}
)

var rootCmd = &cobra.Command{
	Use:   "chaptran",
	Short: "Chapter translation pipeline",
	Long: `A CLI application that moves book chapters through three stages:

  fetch   download Chinese source chapters listed in a saved index page
  raw     produce a raw Vietnamese machine translation of each chapter
  edit    produce a polished translation using the source as reference

Each stage writes one file per chapter under the book directory and skips
chapters that already have output, so any stage can be re-run safely.

Settings come from chaptran.yaml, .env, the environment and flags.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// bindFlags registers flag-to-key bindings applied when cmd runs.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flagKeys[cmd] = keys
}

func initConfig(cmd *cobra.Command) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	v = config.New()
	used, err := config.ReadFile(v, cfgFile)
	if err != nil {
		return err
	}

	if err := config.BindFlags(v, cmd.Root().PersistentFlags(), flagKeys[rootCmd]); err != nil {
		return err
	}
	if keys, ok := flagKeys[cmd]; ok {
		if err := config.BindFlags(v, cmd.Flags(), keys); err != nil {
			return err
		}
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	logger, closeLog, err = logging.Setup(logging.Options{
		Level:    logging.ParseLevel(cfg.LogLevel),
		Console:  os.Stderr,
		ErrorLog: cfg.ErrorLog,
	})
	if err != nil {
		return err
	}
	if used != "" {
		logger.Info("using config file", "path", used)
	}
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./chaptran.yaml)")
	rootCmd.PersistentFlags().String("base-dir", "bjXRF", "Book directory holding the stage folders (BOOK_BASE_DIR)")
	rootCmd.PersistentFlags().String("db", "./data/chaptran.db", "Database path for the run ledger and translation memory")
	rootCmd.PersistentFlags().String("log-level", "info", "Console log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("error-log", "errors.log", "File receiving error records")

	bindFlags(rootCmd, map[string]string{
		"base-dir":  "base_dir",
		"db":        "db",
		"log-level": "log_level",
		"error-log": "error_log",
	})
}
