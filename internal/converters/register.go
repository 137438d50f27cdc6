// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converters

import (
	"github.com/pdiddy/docbridge/internal/registry"
)

// Version stamped on the built-in plugins.
const builtinVersion = "1.0.0"

// pandocPairs are the format pairs routed through pandoc.
var pandocPairs = [][2]registry.Format{
	{"md", "pdf"},
	{"md", "html"},
	{"md", "docx"},
	{"html", "md"},
	{"html", "pdf"},
	{"docx", "md"},
	{"docx", "pdf"},
	{"rtf", "md"},
}

// libreofficePairs are the format pairs routed through libreoffice headless.
// LibreOffice overlaps pandoc on docx2pdf; it registers at a lower preference
// so pandoc wins unless requested by name.
var libreofficePairs = [][2]registry.Format{
	{"docx", "pdf"},
	{"xlsx", "pdf"},
	{"pptx", "pdf"},
	{"odt", "pdf"},
	{"odt", "docx"},
}

// RegisterDefaults installs the built-in converter set into reg: pandoc and
// libreoffice backends for document pairs, passthrough copies between plain
// text formats, and the JSON/YAML re-encoders. Tool availability is not
// checked here; a missing binary surfaces as a dependency error at dispatch.
func RegisterDefaults(reg *registry.Registry) error {
	pandoc := NewTool("pandoc")
	for _, pair := range pandocPairs {
		err := reg.Register(registry.Plugin{
			Name:            "pandoc",
			Source:          pair[0],
			Target:          pair[1],
			Convert:         PandocConvert(pandoc),
			Priority:        10,
			SupportsOptions: true,
			SupportsBatch:   true,
			Dependencies:    []string{"pandoc"},
			Description:     "Universal document converter (pandoc)",
			Version:         builtinVersion,
		})
		if err != nil {
			return err
		}
	}

	libre := NewTool("libreoffice")
	for _, pair := range libreofficePairs {
		err := reg.Register(registry.Plugin{
			Name:          "libreoffice",
			Source:        pair[0],
			Target:        pair[1],
			Convert:       LibreOfficeConvert(libre, string(pair[1])),
			Priority:      20,
			SupportsBatch: false, // headless instances fight over a profile lock
			Dependencies:  []string{"libreoffice"},
			Description:   "Office document converter (libreoffice --headless)",
			Version:       builtinVersion,
		})
		if err != nil {
			return err
		}
	}

	for _, pair := range [][2]registry.Format{{"md", "txt"}, {"txt", "md"}} {
		err := reg.Register(registry.Plugin{
			Name:          "passthrough",
			Source:        pair[0],
			Target:        pair[1],
			Convert:       CopyConvert,
			Priority:      40,
			SupportsBatch: true,
			Description:   "Plain-text passthrough copy",
			Version:       builtinVersion,
		})
		if err != nil {
			return err
		}
	}

	if err := reg.Register(registry.Plugin{
		Name:          "reencode",
		Source:        "json",
		Target:        "yaml",
		Convert:       JSONToYAMLConvert,
		Priority:      30,
		SupportsBatch: true,
		Description:   "JSON to YAML re-encoder",
		Version:       builtinVersion,
	}); err != nil {
		return err
	}
	return reg.Register(registry.Plugin{
		Name:            "reencode",
		Source:          "yaml",
		Target:          "json",
		Convert:         YAMLToJSONConvert,
		Priority:        30,
		SupportsOptions: true,
		SupportsBatch:   true,
		Description:     "YAML to JSON re-encoder",
		Version:         builtinVersion,
	})
}
