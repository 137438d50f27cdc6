// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/docbridge/internal/events"
	"github.com/pdiddy/docbridge/internal/license"
	"github.com/pdiddy/docbridge/internal/progress"
	"github.com/pdiddy/docbridge/internal/registry"
	"github.com/pdiddy/docbridge/pkg/types"
)

const testFingerprint = "engine-test-fingerprint"

// pdfStub is the fixed output the stub converter writes.
var pdfStub = []byte("%PDF-1.4 stub\n")

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := types.ToolkitConfig{
		Cache:   types.CacheConfig{MaxEntries: 16, TTL: time.Hour},
		License: types.LicenseConfig{Dir: t.TempDir()},
	}
	e, err := New(cfg,
		WithoutDefaultConverters(),
		WithWarnWriter(os.Stderr),
		WithLicenseOptions(license.WithFingerprint(testFingerprint)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// registerStub installs a converter that writes pdfStub to the output path.
func registerStub(t *testing.T, e *Engine, source, target registry.Format) {
	t.Helper()
	err := e.Registry.Register(registry.Plugin{
		Name:    "stub",
		Source:  source,
		Target:  target,
		Convert: func(in, out string, opts map[string]any) error { return os.WriteFile(out, pdfStub, 0o644) },
	})
	if err != nil {
		t.Fatal(err)
	}
}

func writeMarkdown(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("# "+name+"\n\nbody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	registerStub(t, e, "md", "pdf")

	dir := t.TempDir()
	in := writeMarkdown(t, dir, "notes.md")
	out := filepath.Join(dir, "notes.pdf")

	res, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: out})
	if err != nil {
		t.Fatal(err)
	}

	if res.ConversionType != "md2pdf" {
		t.Errorf("conversion type = %q, want md2pdf", res.ConversionType)
	}
	if res.FromCache {
		t.Error("first conversion reported as cached")
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(pdfStub) {
		t.Errorf("output = %q, want stub bytes", got)
	}

	var sawStarted, sawCompleted bool
	for _, ev := range e.Bus.History(0) {
		switch ev.Type {
		case events.TypeConversionStarted:
			sawStarted = true
		case events.TypeConversionCompleted:
			sawCompleted = true
			if ev.Data["conversion_type"] != "md2pdf" {
				t.Errorf("completed event data = %v", ev.Data)
			}
		}
	}
	if !sawStarted || !sawCompleted {
		t.Errorf("event history missing lifecycle events (started=%v completed=%v)", sawStarted, sawCompleted)
	}

	op, ok := e.Tracker.Get(res.OperationID)
	if !ok {
		t.Fatal("operation not tracked")
	}
	if op.Status != progress.StatusCompleted || op.CurrentStep != op.TotalSteps {
		t.Errorf("operation = %+v, want completed at final step", op)
	}
}

func TestConvertCacheHit(t *testing.T) {
	e := newTestEngine(t)

	calls := 0
	err := e.Registry.Register(registry.Plugin{
		Name:   "counting",
		Source: "md",
		Target: "pdf",
		Convert: func(in, out string, opts map[string]any) error {
			calls++
			return os.WriteFile(out, pdfStub, 0o644)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	in := writeMarkdown(t, dir, "doc.md")
	out := filepath.Join(dir, "doc.pdf")
	req := Request{InputPath: in, OutputPath: out}

	if _, err := e.Convert(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	res, err := e.Convert(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if !res.FromCache {
		t.Error("second conversion not served from cache")
	}
	if calls != 1 {
		t.Errorf("converter invoked %d times, want 1", calls)
	}

	found := false
	for _, ev := range e.Bus.History(0) {
		if ev.Type == events.TypeConversionCacheHit {
			found = true
		}
	}
	if !found {
		t.Error("cache hit event not published")
	}

	// A cache hit must not consume trial quota.
	status, err := e.Trial.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status.Used != 1 {
		t.Errorf("trial usage = %d, want 1", status.Used)
	}
}

func TestTrialQuotaExhaustion(t *testing.T) {
	e := newTestEngine(t)
	registerStub(t, e, "md", "pdf")

	dir := t.TempDir()
	for i := 0; i < license.TrialConversionLimit; i++ {
		in := writeMarkdown(t, dir, fmt.Sprintf("doc%d.md", i))
		out := filepath.Join(dir, fmt.Sprintf("doc%d.pdf", i))
		if _, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: out}); err != nil {
			t.Fatalf("conversion %d: %v", i, err)
		}
	}

	in := writeMarkdown(t, dir, "over.md")
	out := filepath.Join(dir, "over.pdf")
	_, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: out})
	if !types.IsKind(err, types.KindTrialExpired) {
		t.Fatalf("err = %v, want trial expired", err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Error("output produced despite exhausted quota")
	}

	status, _ := e.Trial.Status()
	if status.Used != license.TrialConversionLimit || !status.Expired {
		t.Errorf("trial status = %+v", status)
	}
}

func TestTrialLocksNonFreeConversions(t *testing.T) {
	e := newTestEngine(t)
	registerStub(t, e, "docx", "pdf")

	dir := t.TempDir()
	in := filepath.Join(dir, "report.docx")
	os.WriteFile(in, []byte("PK\x03\x04fake"), 0o644)

	_, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "report.pdf")})
	if !types.IsKind(err, types.KindLicense) {
		t.Fatalf("err = %v, want license error", err)
	}
	if te := types.AsError(err); te.Details["reason"] != "feature_locked" {
		t.Errorf("details = %v, want feature_locked", te.Details)
	}
}

func TestTrialFileSizeLimit(t *testing.T) {
	e := newTestEngine(t)
	registerStub(t, e, "md", "pdf")

	dir := t.TempDir()
	in := filepath.Join(dir, "big.md")
	if err := os.WriteFile(in, make([]byte, license.TrialMaxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "big.pdf")})
	if !types.IsKind(err, types.KindLicense) {
		t.Fatalf("err = %v, want license error", err)
	}
	if te := types.AsError(err); te.Details["reason"] != "file_too_large" {
		t.Errorf("details = %v, want file_too_large", te.Details)
	}
}

func TestConvertMissingInput(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Convert(context.Background(), Request{
		InputPath:  filepath.Join(t.TempDir(), "nope.md"),
		OutputPath: filepath.Join(t.TempDir(), "out.pdf"),
	})
	if !types.IsKind(err, types.KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestConverterFailureDoesNotConsumeQuota(t *testing.T) {
	e := newTestEngine(t)
	err := e.Registry.Register(registry.Plugin{
		Name:    "failing",
		Source:  "md",
		Target:  "pdf",
		Convert: func(in, out string, opts map[string]any) error { return fmt.Errorf("boom") },
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	in := writeMarkdown(t, dir, "doc.md")
	_, convErr := e.Convert(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "doc.pdf")})
	if !types.IsKind(convErr, types.KindPlugin) {
		t.Fatalf("err = %v, want plugin error", convErr)
	}

	status, _ := e.Trial.Status()
	if status.Used != 0 {
		t.Errorf("failed conversion consumed quota: used = %d", status.Used)
	}

	found := false
	for _, ev := range e.Bus.History(0) {
		if ev.Type == events.TypeConversionFailed {
			found = true
		}
	}
	if !found {
		t.Error("failure event not published")
	}
}

func TestConvertReportsMissingOutput(t *testing.T) {
	e := newTestEngine(t)
	err := e.Registry.Register(registry.Plugin{
		Name:    "liar",
		Source:  "md",
		Target:  "pdf",
		Convert: func(in, out string, opts map[string]any) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	in := writeMarkdown(t, dir, "doc.md")
	_, convErr := e.Convert(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "doc.pdf")})
	if !types.IsKind(convErr, types.KindConversion) {
		t.Errorf("err = %v, want conversion error", convErr)
	}
}

func TestPresetFillsRequest(t *testing.T) {
	presetsPath := filepath.Join(t.TempDir(), "presets.yaml")
	doc := "quick:\n  source: md\n  target: pdf\n  plugin: stub\n"
	if err := os.WriteFile(presetsPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := types.ToolkitConfig{
		Cache:   types.CacheConfig{MaxEntries: 16, TTL: time.Hour},
		License: types.LicenseConfig{Dir: t.TempDir()},
		Convert: types.ConvertConfig{PresetsFile: presetsPath},
	}
	e, err := New(cfg,
		WithoutDefaultConverters(),
		WithLicenseOptions(license.WithFingerprint(testFingerprint)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	registerStub(t, e, "md", "pdf")

	dir := t.TempDir()
	in := writeMarkdown(t, dir, "doc.md")
	out := filepath.Join(dir, "doc.out") // extension does not identify the target

	res, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: out, Preset: "quick"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ConversionType != "md2pdf" || res.Plugin != "stub" {
		t.Errorf("result = %+v, want preset-derived conversion", res)
	}
}

func TestPresetWithoutStoreConfigured(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	in := writeMarkdown(t, dir, "doc.md")

	_, err := e.Convert(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "doc.pdf"), Preset: "quick"})
	if !types.IsKind(err, types.KindConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
}
