// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine orchestrates a conversion end to end: license and trial
// gating, cache lookup, plugin dispatch, progress tracking, and event
// publication. It is the composition root for the toolkit's components.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pdiddy/docbridge/internal/cache"
	"github.com/pdiddy/docbridge/internal/converters"
	"github.com/pdiddy/docbridge/internal/events"
	"github.com/pdiddy/docbridge/internal/license"
	"github.com/pdiddy/docbridge/internal/presets"
	"github.com/pdiddy/docbridge/internal/progress"
	"github.com/pdiddy/docbridge/internal/registry"
	"github.com/pdiddy/docbridge/pkg/types"
)

// Request describes one conversion.
type Request struct {
	InputPath  string
	OutputPath string
	// Source and Target name the formats explicitly; empty values are detected
	// from the input file's content and the output path's extension.
	Source string
	Target string
	// Plugin selects a converter by name; empty picks the preferred candidate.
	Plugin string
	// Preset names a saved configuration; its fields fill any the request
	// leaves empty.
	Preset  string
	Options map[string]any
	// SkipCache bypasses the cache lookup (the result is still stored).
	SkipCache bool
}

// Result reports one finished conversion.
type Result struct {
	InputPath      string
	OutputPath     string
	ConversionType string
	Plugin         string
	FromCache      bool
	Duration       time.Duration
	OperationID    string
}

// Engine wires the toolkit components together. Construct with New; the zero
// value is not usable.
type Engine struct {
	Registry *registry.Registry
	Cache    *cache.Cache
	License  *license.Manager
	Trial    *license.TrialStore
	Bus      *events.Bus
	Tracker  *progress.Tracker
	Presets  *presets.Store

	// serialMu gates dispatch to plugins that declare SupportsBatch false:
	// such converters must never run concurrently, even under ConvertBatch.
	serialMu  sync.Mutex
	retainFor time.Duration
	now       func() time.Time
}

// Option customizes engine construction.
type Option func(*options)

type options struct {
	warn        io.Writer
	licenseOpts []license.Option
	noDefaults  bool
}

// WithWarnWriter directs non-fatal warnings (cache snapshot problems and the
// like) to w instead of stderr.
func WithWarnWriter(w io.Writer) Option {
	return func(o *options) { o.warn = w }
}

// WithLicenseOptions forwards options to the license manager constructor.
func WithLicenseOptions(opts ...license.Option) Option {
	return func(o *options) { o.licenseOpts = append(o.licenseOpts, opts...) }
}

// WithoutDefaultConverters skips registration of the built-in converter set.
func WithoutDefaultConverters() Option {
	return func(o *options) { o.noDefaults = true }
}

// New builds an engine from cfg, constructing every component and registering
// the built-in converters.
func New(cfg types.ToolkitConfig, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.warn == nil {
		o.warn = os.Stderr
	}

	reg := registry.NewRegistry()
	if !o.noDefaults {
		if err := converters.RegisterDefaults(reg); err != nil {
			return nil, fmt.Errorf("registering built-in converters: %w", err)
		}
	}

	c, err := cache.New(cfg.Cache, o.warn)
	if err != nil {
		return nil, err
	}

	mgr, err := license.NewManager(cfg.License, o.licenseOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	trial, err := license.OpenTrialStore(cfg.License.Dir)
	if err != nil {
		c.Close()
		return nil, err
	}

	retain := cfg.Progress.RetainFor
	if retain <= 0 {
		retain = time.Hour
	}

	e := &Engine{
		Registry:  reg,
		Cache:     c,
		License:   mgr,
		Trial:     trial,
		Bus:       events.NewBus(cfg.Events.HistorySize),
		Tracker:   progress.NewTracker(),
		retainFor: retain,
		now:       time.Now,
	}

	// Mirror tracker updates onto the bus so subscribers see progress without
	// registering a tracker callback themselves.
	e.Tracker.OnUpdate(func(op progress.Operation) {
		desc := ""
		if n := len(op.Steps); n > 0 {
			desc = op.Steps[n-1].Description
		}
		e.Bus.Publish(events.NewProgress(op.ID, op.CurrentStep, op.TotalSteps, desc))
	})

	if cfg.Convert.PresetsFile != "" {
		e.Presets, err = presets.Load(cfg.Convert.PresetsFile)
		if err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Close releases component resources and waits for in-flight async events.
func (e *Engine) Close() error {
	e.Tracker.Cleanup(e.retainFor)
	e.Bus.Drain()
	err := e.Cache.Close()
	if terr := e.Trial.Close(); err == nil {
		err = terr
	}
	return err
}

// resolveRequest fills request fields from its preset and detects formats,
// returning the normalized pair and conversion key.
func (e *Engine) resolveRequest(req *Request) (registry.Format, registry.Format, string, error) {
	if req.Preset != "" {
		if e.Presets == nil {
			return "", "", "", types.NewError(types.KindConfiguration, "no presets file configured").
				WithDetail("preset", req.Preset)
		}
		p, err := e.Presets.Get(req.Preset)
		if err != nil {
			return "", "", "", err
		}
		if req.Source == "" {
			req.Source = p.Source
		}
		if req.Target == "" {
			req.Target = p.Target
		}
		if req.Plugin == "" {
			req.Plugin = p.Plugin
		}
		if req.Options == nil {
			req.Options = p.Options
		}
	}

	source := registry.Normalize(req.Source)
	if source == "" {
		source = registry.DetectSourceFormat(req.InputPath)
		if source == "" {
			return "", "", "", types.NewError(types.KindValidation, "could not detect source format").
				WithDetail("input_path", req.InputPath)
		}
	}
	target := registry.Normalize(req.Target)
	if target == "" {
		target = registry.DetectTargetFormat(req.OutputPath)
		if target == "" {
			return "", "", "", types.NewError(types.KindValidation, "could not detect target format").
				WithDetail("output_path", req.OutputPath)
		}
	}
	return source, target, registry.ConversionKey(source, target), nil
}

// authorize enforces license and trial gates for a conversion.
func (e *Engine) authorize(conversionType, inputPath string) error {
	if err := e.License.CheckFileSizeLimit(inputPath); err != nil {
		return err
	}

	status := e.License.Status()
	if status.LicenseType == "paid" && status.MachineBound {
		if !e.License.HasFeatureAccess(conversionType) {
			return types.NewError(types.KindLicense, "license does not include this conversion").
				WithDetail("reason", "feature_locked").
				WithDetail("conversion_type", conversionType)
		}
		return nil
	}
	return e.Trial.CanConvert(conversionType)
}

// trialMode reports whether conversions are consuming the free-tier quota.
func (e *Engine) trialMode() bool {
	status := e.License.Status()
	return !(status.LicenseType == "paid" && status.MachineBound)
}

// Convert runs one conversion end to end. The returned Result is valid only
// when err is nil.
func (e *Engine) Convert(ctx context.Context, req Request) (Result, error) {
	start := e.now()

	if req.InputPath == "" || req.OutputPath == "" {
		return Result{}, types.NewError(types.KindValidation, "input and output paths are required")
	}
	if _, err := os.Stat(req.InputPath); err != nil {
		return Result{}, types.NewError(types.KindValidation, "input file not found").
			WithCause(err).
			WithDetail("input_path", req.InputPath)
	}

	source, target, conversionType, err := e.resolveRequest(&req)
	if err != nil {
		return Result{}, err
	}

	if err := e.authorize(conversionType, req.InputPath); err != nil {
		return Result{}, err
	}

	if !req.SkipCache {
		if cached, ok := e.Cache.Get(req.InputPath, conversionType, req.Options); ok {
			if out, ok := cached.(string); ok {
				e.Bus.Publish(events.NewConversion(events.TypeConversionCacheHit, conversionType, req.InputPath, out, ""))
				return Result{
					InputPath:      req.InputPath,
					OutputPath:     out,
					ConversionType: conversionType,
					FromCache:      true,
					Duration:       e.now().Sub(start),
				}, nil
			}
		}
	}

	plugin, err := e.Registry.Resolve(source, target, req.Plugin)
	if err != nil {
		return Result{}, err
	}

	opID, err := e.Tracker.Start("convert "+conversionType, 3, "")
	if err != nil {
		return Result{}, err
	}
	e.Bus.Publish(events.NewConversion(events.TypeConversionStarted, conversionType, req.InputPath, req.OutputPath, plugin.Name))

	e.Tracker.Update(opID, 1, "preparing")
	if err := ctx.Err(); err != nil {
		e.Tracker.Cancel(opID)
		return Result{}, err
	}

	e.Tracker.Update(opID, 2, "converting")
	convErr := e.dispatch(plugin, req, source, target)

	if convErr == nil {
		e.Tracker.Update(opID, 3, "finalizing")
		if _, statErr := os.Stat(req.OutputPath); statErr != nil {
			convErr = types.NewError(types.KindConversion, "converter reported success but produced no output").
				WithCause(statErr).
				WithDetail("output_path", req.OutputPath).
				WithDetail("conversion_type", conversionType)
		}
	}

	inTrial := e.trialMode()
	if convErr != nil {
		e.Tracker.Complete(opID, false)
		if inTrial {
			// Failed attempts are logged for diagnostics; they do not consume
			// quota, so a recording failure is not worth surfacing over the
			// conversion error itself.
			_ = e.Trial.RecordConversion(conversionType, req.InputPath, req.OutputPath, fileSize(req.InputPath), false)
		}
		e.Bus.Publish(events.NewConversion(events.TypeConversionFailed, conversionType, req.InputPath, req.OutputPath, plugin.Name))
		var details map[string]any
		if te := types.AsError(convErr); te != nil {
			details = te.Details
		}
		e.Bus.Publish(events.NewError("engine", convErr.Error(), details))
		return Result{}, convErr
	}

	e.Cache.Put(req.InputPath, conversionType, req.OutputPath, req.Options, map[string]string{"plugin": plugin.Name})
	if inTrial {
		if err := e.Trial.RecordConversion(conversionType, req.InputPath, req.OutputPath, fileSize(req.InputPath), true); err != nil {
			e.Tracker.Complete(opID, false)
			return Result{}, err
		}
	}

	e.Tracker.Complete(opID, true)
	e.Bus.Publish(events.NewConversion(events.TypeConversionCompleted, conversionType, req.InputPath, req.OutputPath, plugin.Name))

	return Result{
		InputPath:      req.InputPath,
		OutputPath:     req.OutputPath,
		ConversionType: conversionType,
		Plugin:         plugin.Name,
		Duration:       e.now().Sub(start),
		OperationID:    opID,
	}, nil
}

// dispatch invokes the resolved plugin through the registry. Converters that
// do not support parallel batch execution are serialized engine-wide;
// LibreOffice, for one, fails when two headless instances share a profile.
func (e *Engine) dispatch(p *registry.Plugin, req Request, source, target registry.Format) error {
	if !p.SupportsBatch {
		e.serialMu.Lock()
		defer e.serialMu.Unlock()
	}
	return e.Registry.Dispatch(req.InputPath, req.OutputPath, source, target, p.Name, req.Options)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
