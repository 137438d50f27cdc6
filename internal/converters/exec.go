// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package converters provides the built-in converter set: external-tool
// backends (pandoc, libreoffice) and pure-Go text converters, plus the
// bootstrap that registers them all.
package converters

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdiddy/docbridge/pkg/types"
)

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

var defaultExec executor = &osExecutor{}

// Tool is an external conversion binary. Availability is checked at dispatch
// time, not registration time, so a tool installed after startup still works.
type Tool struct {
	bin  string
	exec executor
}

// NewTool wraps the named binary with the production executor.
func NewTool(bin string) *Tool {
	return &Tool{bin: bin, exec: defaultExec}
}

// Name returns the tool's binary name.
func (t *Tool) Name() string { return t.bin }

// Available reports whether the binary exists on PATH.
func (t *Tool) Available() bool {
	_, err := t.exec.LookPath(t.bin)
	return err == nil
}

// require returns a dependency error when the binary is missing.
func (t *Tool) require() error {
	if _, err := t.exec.LookPath(t.bin); err != nil {
		return types.NewError(types.KindDependency, fmt.Sprintf("%s is not installed", t.bin)).
			WithCause(err).
			WithDetail("tool", t.bin)
	}
	return nil
}

// run executes the tool and wraps a non-zero exit into a conversion error
// carrying the tool's combined output.
func (t *Tool) run(args ...string) error {
	out, err := t.exec.Run(t.bin, args...)
	if err != nil {
		return types.NewError(types.KindConversion, fmt.Sprintf("%s failed", t.bin)).
			WithCause(err).
			WithDetail("tool", t.bin).
			WithDetail("output", strings.TrimSpace(string(out)))
	}
	return nil
}

// PandocConvert builds a converter that shells out to pandoc. Recognized
// options: "standalone" (bool, default true), "toc" (bool), "template"
// (string), and "variables" (map of pandoc -V variables).
func PandocConvert(t *Tool) func(inputPath, outputPath string, opts map[string]any) error {
	return func(inputPath, outputPath string, opts map[string]any) error {
		if err := t.require(); err != nil {
			return err
		}

		args := []string{inputPath, "-o", outputPath}
		if standalone, ok := opts["standalone"].(bool); !ok || standalone {
			args = append(args, "--standalone")
		}
		if toc, _ := opts["toc"].(bool); toc {
			args = append(args, "--toc")
		}
		if tmpl, _ := opts["template"].(string); tmpl != "" {
			args = append(args, "--template", tmpl)
		}
		if vars, _ := opts["variables"].(map[string]any); vars != nil {
			for k, v := range vars {
				args = append(args, "-V", fmt.Sprintf("%s=%v", k, v))
			}
		}
		return t.run(args...)
	}
}

// LibreOfficeConvert builds a converter that shells out to libreoffice in
// headless mode, converting into the output file's directory. targetExt is
// the libreoffice filter name, e.g. "pdf" or "docx".
func LibreOfficeConvert(t *Tool, targetExt string) func(inputPath, outputPath string, opts map[string]any) error {
	return func(inputPath, outputPath string, opts map[string]any) error {
		if err := t.require(); err != nil {
			return err
		}
		return t.run("--headless", "--convert-to", targetExt, "--outdir", filepath.Dir(outputPath), inputPath)
	}
}
