package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported formats and registered converter plugins",
	Long: `Formats lists every registered converter plugin with its format pair,
priority, and external tool dependencies, plus the overall set of supported
input and output formats.`,
	RunE: runFormats,
}

func runFormats(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	plugins := eng.Registry.List()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		type pluginInfo struct {
			Name         string   `json:"name"`
			Conversion   string   `json:"conversion"`
			Priority     int      `json:"priority"`
			Dependencies []string `json:"dependencies,omitempty"`
			Description  string   `json:"description,omitempty"`
			Version      string   `json:"version,omitempty"`
		}
		out := make([]pluginInfo, 0, len(plugins))
		for _, p := range plugins {
			out = append(out, pluginInfo{
				Name:         p.Name,
				Conversion:   p.Key(),
				Priority:     p.Priority,
				Dependencies: p.Dependencies,
				Description:  p.Description,
				Version:      p.Version,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(os.Stdout, "%-12s  %-12s  %-8s  %-20s  %s\n",
		"Conversion", "Plugin", "Priority", "Dependencies", "Description")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, p := range plugins {
		fmt.Fprintf(os.Stdout, "%-12s  %-12s  %-8d  %-20s  %s\n",
			p.Key(), p.Name, p.Priority, strings.Join(p.Dependencies, ","), p.Description)
	}

	inputs := eng.Registry.InputFormats()
	outputs := eng.Registry.OutputFormats()
	in := make([]string, len(inputs))
	for i, f := range inputs {
		in[i] = string(f)
	}
	out := make([]string, len(outputs))
	for i, f := range outputs {
		out[i] = string(f)
	}
	fmt.Fprintf(os.Stdout, "\nInput formats:  %s\n", strings.Join(in, ", "))
	fmt.Fprintf(os.Stdout, "Output formats: %s\n", strings.Join(out, ", "))
	return nil
}

func init() {
	formatsCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(formatsCmd)
}
