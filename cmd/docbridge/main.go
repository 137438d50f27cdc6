// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docbridge CLI, the command-line
// surface of the document conversion toolkit: convert, formats, license,
// trial, and cache management.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docbridge/internal/engine"
	"github.com/pdiddy/docbridge/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes: 0 success, 1 operational failure (conversion, license, tool),
// 2 usage or configuration error.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// rootCmd is the base command for the docbridge CLI.
var rootCmd = &cobra.Command{
	Use:   "docbridge",
	Short: "Document conversion toolkit",
	Long: `docbridge converts documents between formats through a plugin registry of
converter backends (pandoc, libreoffice, built-in re-encoders). Results are
cached by input content, conversions are gated by the license or the free
trial quota, and host applications can drive the CLI through a line-framed
bridge protocol on stdout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docbridge.yaml or ~/.config/docbridge/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the license record, trial database, and cache snapshot")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "docbridge"))
		}
	}

	viper.SetEnvPrefix("DOCBRIDGE")
	viper.AutomaticEnv()

	viper.SetDefault("cache.max_entries", 100)
	viper.SetDefault("cache.ttl", time.Hour)
	viper.SetDefault("events.history_size", 100)
	viper.SetDefault("progress.retain_for", time.Hour)
	viper.SetDefault("convert.workers", 4)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// dataDir resolves the toolkit state directory: flag, then config, then
// ~/.config/docbridge.
func dataDir() string {
	if dir, _ := rootCmd.PersistentFlags().GetString("data-dir"); dir != "" {
		return dir
	}
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docbridge"
	}
	return filepath.Join(home, ".config", "docbridge")
}

// toolkitConfig assembles the engine configuration from viper state.
func toolkitConfig() types.ToolkitConfig {
	dir := dataDir()
	cfg := types.ToolkitConfig{
		Cache: types.CacheConfig{
			MaxEntries: viper.GetInt("cache.max_entries"),
			TTL:        viper.GetDuration("cache.ttl"),
			Watch:      viper.GetBool("cache.watch"),
		},
		License: types.LicenseConfig{
			Dir:      dir,
			Endpoint: viper.GetString("license.endpoint"),
			Timeout:  viper.GetDuration("license.timeout"),
		},
		Events: types.EventsConfig{
			HistorySize: viper.GetInt("events.history_size"),
		},
		Progress: types.ProgressConfig{
			RetainFor: viper.GetDuration("progress.retain_for"),
		},
		Convert: types.ConvertConfig{
			Workers:     viper.GetInt("convert.workers"),
			PresetsFile: viper.GetString("convert.presets_file"),
		},
	}
	if viper.GetBool("cache.persist") {
		cfg.Cache.PersistPath = filepath.Join(dir, "cache.yaml")
	}
	return cfg
}

// newEngine builds the engine from the resolved configuration.
func newEngine() (*engine.Engine, error) {
	return engine.New(toolkitConfig())
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if types.IsKind(err, types.KindValidation) || types.IsKind(err, types.KindConfiguration) {
		return exitUsage
	}
	return exitError
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
