package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docbridge/internal/license"
	"github.com/pdiddy/docbridge/pkg/types"
)

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Manage license activation",
	Long: `License manages the machine-bound license record. Activation verifies the
key's signature (online against the license backend when configured, offline
otherwise) and binds the license to this machine's fingerprint.`,
}

var licenseActivateCmd = &cobra.Command{
	Use:   "activate <key>",
	Short: "Activate a license key on this machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runLicenseActivate,
}

func runLicenseActivate(cmd *cobra.Command, args []string) error {
	mgr, err := licenseManager()
	if err != nil {
		return err
	}

	status, err := mgr.Activate(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("License activated (%s, %s validation)\n", status.LicenseType, status.ValidationMode)
	if status.Email != "" {
		fmt.Printf("Registered to: %s\n", status.Email)
	}
	return nil
}

var licenseDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Remove the license from this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := licenseManager()
		if err != nil {
			return err
		}
		if _, err := mgr.Deactivate(); err != nil {
			return err
		}
		fmt.Println("License deactivated; this machine is back in trial mode.")
		return nil
	},
}

var licenseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current license state",
	RunE:  runLicenseStatus,
}

func runLicenseStatus(cmd *cobra.Command, args []string) error {
	mgr, err := licenseManager()
	if err != nil {
		return err
	}
	status := mgr.Status()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	if status.Corrupt {
		fmt.Fprintln(os.Stderr, "Warning: the stored license record is corrupt; running in trial mode.")
	}
	fmt.Printf("License type: %s\n", status.LicenseType)
	if status.MachineBound {
		fmt.Printf("Activated:    %s\n", status.ActivationDate)
		if status.ExpiryDate != "" {
			fmt.Printf("Expires:      %s\n", status.ExpiryDate)
		}
		if len(status.Features) > 0 {
			fmt.Printf("Features:     %v\n", status.Features)
		}
	}
	return nil
}

// licenseManager builds a standalone manager without the full engine, so
// license commands work even when converter construction would fail.
func licenseManager() (*license.Manager, error) {
	cfg := toolkitConfig()
	return license.NewManager(types.LicenseConfig{
		Dir:      cfg.License.Dir,
		Endpoint: cfg.License.Endpoint,
		Timeout:  cfg.License.Timeout,
	})
}

func init() {
	licenseStatusCmd.Flags().Bool("json", false, "output as JSON")

	licenseCmd.AddCommand(licenseActivateCmd)
	licenseCmd.AddCommand(licenseDeactivateCmd)
	licenseCmd.AddCommand(licenseStatusCmd)

	rootCmd.AddCommand(licenseCmd)
}
