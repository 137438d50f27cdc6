package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pdiddy/docbridge/internal/bridge"
	"github.com/pdiddy/docbridge/internal/engine"
	"github.com/pdiddy/docbridge/internal/progress"
	"github.com/pdiddy/docbridge/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [inputs...]",
	Short: "Convert documents between formats",
	Long: `Convert transforms one or more input files into the target format. A single
input converts to --output; multiple inputs convert in parallel into
--output-dir with the target format's extension.

Formats are detected from file content and extensions when --from/--to are
omitted. Use --plugin to pick a specific converter and --option key=value to
pass converter options. With --bridge, progress and results are emitted as
tagged JSON lines for host applications.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useBridge, _ := cmd.Flags().GetBool("bridge")
	var emitter *bridge.Emitter
	if useBridge {
		emitter = bridge.NewEmitter(os.Stdout)
	}

	reqs, err := buildRequests(cmd, args, eng)
	if err != nil {
		if emitter != nil {
			emitter.Error(err)
		}
		return err
	}

	if len(reqs) == 1 {
		return convertOne(ctx, eng, reqs[0], emitter)
	}
	return convertBatch(ctx, cmd, eng, reqs, emitter)
}

// buildRequests maps the command line to conversion requests.
func buildRequests(cmd *cobra.Command, args []string, eng *engine.Engine) ([]engine.Request, error) {
	source, _ := cmd.Flags().GetString("from")
	target, _ := cmd.Flags().GetString("to")
	plugin, _ := cmd.Flags().GetString("plugin")
	preset, _ := cmd.Flags().GetString("preset")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	rawOpts, _ := cmd.Flags().GetStringArray("option")

	opts, err := parseOptions(rawOpts)
	if err != nil {
		return nil, err
	}

	base := engine.Request{
		Source:    source,
		Target:    target,
		Plugin:    plugin,
		Preset:    preset,
		Options:   opts,
		SkipCache: noCache,
	}

	if len(args) == 1 {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return nil, types.NewError(types.KindValidation, "--output is required for a single conversion")
		}
		req := base
		req.InputPath = args[0]
		req.OutputPath = output
		return []engine.Request{req}, nil
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		return nil, types.NewError(types.KindValidation, "--output-dir is required for batch conversion")
	}
	ext := target
	if ext == "" {
		if preset == "" {
			return nil, types.NewError(types.KindValidation, "--to (or --preset) is required for batch conversion")
		}
		// Batch outputs are named before conversion, so the preset's target
		// decides their extension.
		if eng.Presets == nil {
			return nil, types.NewError(types.KindConfiguration, "no presets file configured").
				WithDetail("preset", preset)
		}
		p, err := eng.Presets.Get(preset)
		if err != nil {
			return nil, err
		}
		ext = p.Target
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	reqs := make([]engine.Request, 0, len(args))
	for _, input := range args {
		req := base
		req.InputPath = input
		stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		req.OutputPath = filepath.Join(outputDir, stem+"."+ext)
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// parseOptions turns repeated key=value flags into a typed option map.
// Values parse as bool or int when they look like one, else stay strings.
func parseOptions(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	opts := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, types.NewError(types.KindValidation, "options must be key=value").
				WithDetail("option", kv)
		}
		switch {
		case value == "true" || value == "false":
			opts[key] = value == "true"
		default:
			if n, err := strconv.Atoi(value); err == nil {
				opts[key] = n
			} else {
				opts[key] = value
			}
		}
	}
	return opts, nil
}

func convertOne(ctx context.Context, eng *engine.Engine, req engine.Request, emitter *bridge.Emitter) error {
	if emitter != nil {
		eng.Tracker.OnUpdate(func(op progress.Operation) {
			desc := ""
			if n := len(op.Steps); n > 0 {
				desc = op.Steps[n-1].Description
			}
			emitter.Progress(op.ID, op.Percent(), desc)
		})
	}

	start := time.Now()
	res, err := eng.Convert(ctx, req)
	if err != nil {
		if emitter != nil {
			emitter.Error(err)
		}
		return err
	}

	if emitter != nil {
		emitter.Result(bridge.Result{
			Success:    true,
			InputFile:  res.InputPath,
			OutputFile: res.OutputPath,
			Converter:  res.Plugin,
			FromCache:  res.FromCache,
			Duration:   time.Since(start).Seconds(),
		})
		return nil
	}

	if res.FromCache {
		fmt.Printf("%s -> %s (cached)\n", res.InputPath, res.OutputPath)
	} else {
		fmt.Printf("%s -> %s (%s, %.2fs)\n", res.InputPath, res.OutputPath, res.ConversionType, res.Duration.Seconds())
	}
	return nil
}

func convertBatch(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, reqs []engine.Request, emitter *bridge.Emitter) error {
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = toolkitConfig().Convert.Workers
	}

	var bar *progressbar.ProgressBar
	if emitter == nil {
		bar = progressbar.NewOptions(len(reqs),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	onProgress := func(completed, total int, item engine.BatchItem) {
		if emitter != nil {
			emitter.BatchProgress(bridge.BatchProgress{
				Completed: completed,
				Total:     total,
				Current:   item.Request.InputPath,
			})
			return
		}
		bar.Add(1)
	}

	summary := eng.ConvertBatch(ctx, reqs, workers, onProgress)

	var failures []string
	for _, item := range summary.Items {
		if item.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", item.Request.InputPath, item.Err))
		}
	}

	if emitter != nil {
		emitter.BatchResult(bridge.BatchResult{
			Total:     summary.Total,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Errors:    failures,
			Duration:  summary.Duration.Seconds(),
		})
	} else {
		fmt.Printf("%d/%d converted in %.2fs\n", summary.Succeeded, summary.Total, summary.Duration.Seconds())
		for _, f := range failures {
			fmt.Fprintln(os.Stderr, "failed:", f)
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", summary.Failed, summary.Total)
	}
	return nil
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output file (single conversion)")
	convertCmd.Flags().String("output-dir", "", "output directory (batch conversion)")
	convertCmd.Flags().String("from", "", "source format (default: detect from content)")
	convertCmd.Flags().String("to", "", "target format (default: detect from output extension)")
	convertCmd.Flags().String("plugin", "", "converter plugin name (default: best match)")
	convertCmd.Flags().String("preset", "", "named conversion preset")
	convertCmd.Flags().StringArray("option", nil, "converter option key=value (repeatable)")
	convertCmd.Flags().Bool("no-cache", false, "bypass the conversion cache")
	convertCmd.Flags().Bool("bridge", false, "emit machine-readable JSON lines for host applications")
	convertCmd.Flags().Int("workers", 0, "parallel conversions in batch mode (default from config)")

	rootCmd.AddCommand(convertCmd)
}
