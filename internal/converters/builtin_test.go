// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converters

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/docbridge/internal/registry"
	"github.com/pdiddy/docbridge/pkg/types"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCopyConvert(t *testing.T) {
	in := writeInput(t, "notes.md", "# Notes\n\nplain text survives\n")
	out := filepath.Join(t.TempDir(), "notes.txt")

	if err := CopyConvert(in, out, nil); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "# Notes\n\nplain text survives\n" {
		t.Errorf("output = %q", got)
	}
}

func TestCopyConvertMissingInput(t *testing.T) {
	err := CopyConvert(filepath.Join(t.TempDir(), "nope.md"), filepath.Join(t.TempDir(), "out.txt"), nil)
	if !types.IsKind(err, types.KindConversion) {
		t.Errorf("err = %v, want conversion error", err)
	}
}

func TestJSONToYAML(t *testing.T) {
	in := writeInput(t, "doc.json", `{"title": "Report", "pages": 12, "tags": ["a", "b"]}`)
	out := filepath.Join(t.TempDir(), "doc.yaml")

	if err := JSONToYAMLConvert(in, out, nil); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(out)
	text := string(got)
	if !strings.Contains(text, "title: Report") || !strings.Contains(text, "pages: 12") {
		t.Errorf("yaml output = %q", text)
	}
}

func TestJSONToYAMLRejectsBadInput(t *testing.T) {
	in := writeInput(t, "doc.json", "{broken")
	err := JSONToYAMLConvert(in, filepath.Join(t.TempDir(), "doc.yaml"), nil)
	if !types.IsKind(err, types.KindConversion) {
		t.Errorf("err = %v, want conversion error", err)
	}
}

func TestYAMLToJSON(t *testing.T) {
	in := writeInput(t, "doc.yaml", "title: Report\nmeta:\n  pages: 12\n")
	out := filepath.Join(t.TempDir(), "doc.json")

	if err := YAMLToJSONConvert(in, out, nil); err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	data, _ := os.ReadFile(out)
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc["title"] != "Report" {
		t.Errorf("doc = %v", doc)
	}
	meta, _ := doc["meta"].(map[string]any)
	if meta["pages"] != float64(12) {
		t.Errorf("nested mapping lost: %v", doc)
	}
}

func TestRegisterDefaults(t *testing.T) {
	reg := registry.NewRegistry()
	if err := RegisterDefaults(reg); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"md2pdf", "md2html", "docx2pdf", "md2txt", "json2yaml", "yaml2json"} {
		parts := strings.SplitN(key, "2", 2)
		if !reg.Supported(parts[0], parts[1]) {
			t.Errorf("conversion %s not registered", key)
		}
	}

	// docx2pdf has two candidates; pandoc's lower priority number wins.
	p, err := reg.Resolve("docx", "pdf", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "pandoc" {
		t.Errorf("preferred docx2pdf plugin = %q, want pandoc", p.Name)
	}

	// The overlapped plugin is still reachable by name.
	p, err = reg.Resolve("docx", "pdf", "libreoffice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "libreoffice" {
		t.Errorf("named resolve = %q", p.Name)
	}
}
