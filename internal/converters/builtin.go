// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converters

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docbridge/pkg/types"
)

// CopyConvert streams the input file to the output path unchanged. It backs
// the passthrough pairs between plain-text formats (md/txt).
func CopyConvert(inputPath, outputPath string, opts map[string]any) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return types.NewError(types.KindConversion, "opening input file").
			WithCause(err).
			WithDetail("input_file", inputPath)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return types.NewError(types.KindConversion, "creating output file").
			WithCause(err).
			WithDetail("output_file", outputPath)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return types.NewError(types.KindConversion, "copying file contents").
			WithCause(err).
			WithDetail("input_file", inputPath).
			WithDetail("output_file", outputPath)
	}
	return nil
}

// JSONToYAMLConvert re-encodes a JSON document as YAML.
func JSONToYAMLConvert(inputPath, outputPath string, opts map[string]any) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return readError(inputPath, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.NewError(types.KindConversion, "input is not valid JSON").
			WithCause(err).
			WithDetail("input_file", inputPath)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return types.NewError(types.KindConversion, "encoding YAML").
			WithCause(err).
			WithDetail("input_file", inputPath)
	}
	return writeOutput(outputPath, out)
}

// YAMLToJSONConvert re-encodes a YAML document as indented JSON. Recognized
// option: "indent" (string, default two spaces).
func YAMLToJSONConvert(inputPath, outputPath string, opts map[string]any) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return readError(inputPath, err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.NewError(types.KindConversion, "input is not valid YAML").
			WithCause(err).
			WithDetail("input_file", inputPath)
	}

	indent := "  "
	if s, ok := opts["indent"].(string); ok {
		indent = s
	}
	out, err := json.MarshalIndent(normalizeYAML(doc), "", indent)
	if err != nil {
		return types.NewError(types.KindConversion, "encoding JSON").
			WithCause(err).
			WithDetail("input_file", inputPath)
	}
	return writeOutput(outputPath, append(out, '\n'))
}

// normalizeYAML rewrites map[any]any trees (as older YAML decoders produce)
// into map[string]any so json.Marshal accepts them.
func normalizeYAML(v any) any {
	switch vv := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		for k, val := range vv {
			vv[k] = normalizeYAML(val)
		}
		return vv
	case []any:
		for i, val := range vv {
			vv[i] = normalizeYAML(val)
		}
		return vv
	default:
		return v
	}
}

func readError(path string, err error) error {
	return types.NewError(types.KindConversion, "reading input file").
		WithCause(err).
		WithDetail("input_file", path)
}

func writeOutput(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.NewError(types.KindConversion, "writing output file").
			WithCause(err).
			WithDetail("output_file", path)
	}
	return nil
}
