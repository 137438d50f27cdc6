package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docbridge/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the conversion cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache effectiveness counters",
	RunE:  runCacheStats,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache()
	if err != nil {
		return err
	}
	defer c.Close()

	stats := c.Stats()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"entries":   stats.Entries,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
		})
	}

	fmt.Printf("Entries:   %d\n", stats.Entries)
	fmt.Printf("Hits:      %d\n", stats.Hits)
	fmt.Printf("Misses:    %d\n", stats.Misses)
	fmt.Printf("Evictions: %d\n", stats.Evictions)
	return nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached conversion results",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

// openCache loads the persisted cache without building the full engine.
func openCache() (*cache.Cache, error) {
	return cache.New(toolkitConfig().Cache, os.Stderr)
}

func init() {
	cacheStatsCmd.Flags().Bool("json", false, "output as JSON")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}
