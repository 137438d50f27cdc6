// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/docbridge/pkg/types"
)

// Converter performs one conversion. opts is nil when the plugin does not
// declare SupportsOptions. A nil error means the output was produced at
// outputPath.
type Converter func(inputPath, outputPath string, opts map[string]any) error

// Plugin describes one registered converter.
type Plugin struct {
	Name   string
	Source Format
	Target Format
	// Convert is the converter callable. Required.
	Convert Converter
	// Priority orders candidates for the same format pair; lower is
	// preferred. Default 50.
	Priority int
	// SupportsOptions controls whether dispatch forwards caller options.
	SupportsOptions bool
	// SupportsBatch marks converters safe to run in parallel batch workers.
	SupportsBatch bool
	// Dependencies names external tools the converter shells out to.
	// Informational; presence is not enforced before dispatch.
	Dependencies []string
	Description  string
	Version      string
	Author       string

	seq int // registration order, breaks priority ties
}

// Key returns the plugin's conversion identity, e.g. "md2pdf".
func (p *Plugin) Key() string { return ConversionKey(p.Source, p.Target) }

// DefaultPriority is assigned when a registration leaves Priority zero.
const DefaultPriority = 50

// Registry holds the plugin table. Construct with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string][]*Plugin
	resolved map[string]*Plugin
	nextSeq  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string][]*Plugin),
		resolved: make(map[string]*Plugin),
	}
}

// Register adds a plugin. Source and target are normalized through the alias
// table. The candidate list for the pair is re-sorted by priority (ties keep
// registration order) and any cached resolution for the pair is invalidated.
func (r *Registry) Register(p Plugin) error {
	p.Source = Normalize(string(p.Source))
	p.Target = Normalize(string(p.Target))

	if p.Source == "" || p.Target == "" {
		return types.NewError(types.KindValidation, "plugin source and target formats are required").
			WithDetail("name", p.Name)
	}
	if p.Convert == nil {
		return types.NewError(types.KindValidation, "plugin converter is required").
			WithDetail("name", p.Name)
	}
	if p.Name == "" {
		p.Name = p.Key()
	}
	if p.Priority == 0 {
		p.Priority = DefaultPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	for _, existing := range r.plugins[key] {
		if existing.Name == p.Name {
			return types.NewError(types.KindValidation, "plugin name already registered for this conversion").
				WithDetail("name", p.Name).
				WithDetail("conversion_type", key)
		}
	}

	p.seq = r.nextSeq
	r.nextSeq++

	list := append(r.plugins[key], &p)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
	r.plugins[key] = list

	r.invalidateResolutionLocked(key)
	return nil
}

// Unregister removes the named plugin for a format pair. It reports whether
// a plugin was removed.
func (r *Registry) Unregister(source, target, name string) bool {
	key := ConversionKey(Normalize(source), Normalize(target))

	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.plugins[key]
	for i, p := range list {
		if p.Name == name {
			r.plugins[key] = append(list[:i:i], list[i+1:]...)
			if len(r.plugins[key]) == 0 {
				delete(r.plugins, key)
			}
			r.invalidateResolutionLocked(key)
			return true
		}
	}
	return false
}

// Resolve selects the plugin for a format pair. With a name it returns that
// plugin or a not-found error; without, the highest-preference (lowest
// priority number) candidate. Results are cached until the pair's candidate
// list changes.
func (r *Registry) Resolve(source, target Format, name string) (*Plugin, error) {
	key := ConversionKey(Normalize(string(source)), Normalize(string(target)))
	cacheKey := key + "/" + name

	r.mu.RLock()
	if p, ok := r.resolved[cacheKey]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	// Selection and caching happen under one write lock so a registration
	// between them cannot leave a stale winner cached.
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.resolved[cacheKey]; ok {
		return p, nil
	}

	found := selectCandidate(r.plugins[key], name)
	if found == nil {
		err := types.NewError(types.KindPlugin, fmt.Sprintf("no plugin for conversion %s", key)).
			WithDetail("conversion_type", key)
		if name != "" {
			err.Message = fmt.Sprintf("plugin %q not found for conversion %s", name, key)
			err.WithDetail("plugin", name)
		}
		return nil, err
	}

	r.resolved[cacheKey] = found
	return found, nil
}

// selectCandidate picks from a priority-sorted candidate list: the named
// plugin, or the first entry when no name is given.
func selectCandidate(list []*Plugin, name string) *Plugin {
	if name == "" {
		if len(list) > 0 {
			return list[0]
		}
		return nil
	}
	for _, p := range list {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// invalidateResolutionLocked drops cached resolutions for key. Caller holds
// the write lock.
func (r *Registry) invalidateResolutionLocked(key string) {
	for cacheKey := range r.resolved {
		if cacheKey == key || len(cacheKey) > len(key) && cacheKey[:len(key)+1] == key+"/" {
			delete(r.resolved, cacheKey)
		}
	}
}

// Dispatch resolves a plugin for the request and invokes it. Empty formats
// are auto-detected: the source from the input file's content or extension,
// the target from the output path's extension. A converter panic or error is
// wrapped into a plugin error carrying the plugin name and failure stage.
func (r *Registry) Dispatch(inputPath, outputPath string, source, target Format, name string, opts map[string]any) error {
	if source == "" {
		source = DetectSourceFormat(inputPath)
		if source == "" {
			return types.NewError(types.KindPlugin, "could not detect source format").
				WithDetail("input_path", inputPath).
				WithDetail("stage", "detect")
		}
	}
	if target == "" {
		target = DetectTargetFormat(outputPath)
		if target == "" {
			return types.NewError(types.KindPlugin, "could not detect target format").
				WithDetail("output_path", outputPath).
				WithDetail("stage", "detect")
		}
	}

	p, err := r.Resolve(source, target, name)
	if err != nil {
		return err
	}

	var callOpts map[string]any
	if p.SupportsOptions {
		callOpts = opts
	}

	if err := safeConvert(p, inputPath, outputPath, callOpts); err != nil {
		if te := types.AsError(err); te != nil {
			return te
		}
		return types.NewError(types.KindPlugin, "converter failed").
			WithCause(err).
			WithDetail("plugin", p.Name).
			WithDetail("conversion_type", p.Key()).
			WithDetail("stage", "convert")
	}
	return nil
}

// safeConvert invokes the converter, turning a panic into an error.
func safeConvert(p *Plugin, inputPath, outputPath string, opts map[string]any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = types.NewError(types.KindPlugin, fmt.Sprintf("converter panic: %v", rec)).
				WithDetail("plugin", p.Name).
				WithDetail("conversion_type", p.Key()).
				WithDetail("stage", "convert")
		}
	}()
	return p.Convert(inputPath, outputPath, opts)
}

// List returns every registered plugin, ordered by conversion key then
// preference.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.plugins))
	for k := range r.plugins {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*Plugin
	for _, k := range keys {
		out = append(out, r.plugins[k]...)
	}
	return out
}

// Conversions returns the sorted set of supported conversion keys.
func (r *Registry) Conversions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.plugins))
	for k := range r.plugins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InputFormats returns the sorted set of formats accepted as a source.
func (r *Registry) InputFormats() []Format {
	return r.formatSet(func(p *Plugin) Format { return p.Source })
}

// OutputFormats returns the sorted set of formats producible as a target.
func (r *Registry) OutputFormats() []Format {
	return r.formatSet(func(p *Plugin) Format { return p.Target })
}

func (r *Registry) formatSet(pick func(*Plugin) Format) []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Format]struct{})
	for _, list := range r.plugins {
		for _, p := range list {
			seen[pick(p)] = struct{}{}
		}
	}
	out := make([]Format, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supported reports whether any plugin handles the format pair.
func (r *Registry) Supported(source, target string) bool {
	key := ConversionKey(Normalize(source), Normalize(target))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins[key]) > 0
}
