package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docbridge/internal/license"
)

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Inspect the free-tier trial quota",
}

var trialStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show remaining free conversions",
	RunE:  runTrialStatus,
}

func runTrialStatus(cmd *cobra.Command, args []string) error {
	store, err := license.OpenTrialStore(dataDir())
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := store.Status()
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Printf("Trial conversions: %d of %d used, %d remaining\n", status.Used, status.Limit, status.Remaining)
	if !status.FirstRun.IsZero() {
		fmt.Printf("First run:         %s\n", status.FirstRun.Format("2006-01-02"))
	}
	if status.Expired {
		fmt.Println("The trial quota is exhausted; activate a license to continue converting.")
	}
	return nil
}

// trialResetCmd clears the usage rows. Hidden: it exists for development and
// support, not end users.
var trialResetCmd = &cobra.Command{
	Use:    "reset",
	Short:  "Reset the trial conversion counter",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := license.OpenTrialStore(dataDir())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reset(); err != nil {
			return err
		}
		fmt.Println("Trial usage reset.")
		return nil
	},
}

func init() {
	trialStatusCmd.Flags().Bool("json", false, "output as JSON")

	trialCmd.AddCommand(trialStatusCmd)
	trialCmd.AddCommand(trialResetCmd)

	rootCmd.AddCommand(trialCmd)
}
