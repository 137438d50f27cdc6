// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry maps (source format, target format) pairs to converter
// plugins and dispatches conversion requests to the best candidate.
package registry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Format is a normalized document format identifier ("md", "pdf", "html").
// Build one with Normalize; raw user strings may be aliases.
type Format string

// formatAliases maps accepted spellings to their canonical form.
var formatAliases = map[string]string{
	"markdown": "md",
	"htm":      "html",
	"jpeg":     "jpg",
	"tif":      "tiff",
	"text":     "txt",
	"yml":      "yaml",
}

// Normalize lowercases, trims a leading dot, and resolves aliases. An empty
// input stays empty; callers validate presence separately.
func Normalize(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	if canonical, ok := formatAliases[s]; ok {
		s = canonical
	}
	return Format(s)
}

// ConversionKey returns the identity key for a format pair, e.g. "md2pdf".
func ConversionKey(source, target Format) string {
	return string(source) + "2" + string(target)
}

// sniffLen is how many leading bytes DetectSourceFormat inspects.
const sniffLen = 512

// DetectSourceFormat determines the format of the file at path, preferring
// content magic over the file extension. Zip-based office containers (docx,
// xlsx, pptx, epub) share a magic and are disambiguated by extension.
// Returns an empty Format when neither content nor extension identifies the
// file.
func DetectSourceFormat(path string) Format {
	buf := make([]byte, sniffLen)
	f, err := os.Open(path)
	if err == nil {
		n, _ := f.Read(buf)
		f.Close()
		buf = buf[:n]

		switch {
		case bytes.HasPrefix(buf, []byte("%PDF-")):
			return "pdf"
		case bytes.HasPrefix(buf, []byte("PK\x03\x04")):
			if ext := extFormat(path); ext != "" {
				return ext
			}
			return "docx"
		case bytes.HasPrefix(buf, []byte("{\\rtf")):
			return "rtf"
		case bytes.HasPrefix(buf, []byte("\x89PNG\r\n\x1a\n")):
			return "png"
		case bytes.HasPrefix(buf, []byte("\xff\xd8\xff")):
			return "jpg"
		case looksLikeHTML(buf):
			return "html"
		}
	}
	return extFormat(path)
}

// DetectTargetFormat determines the requested output format from the output
// path's extension. Returns an empty Format when there is no extension.
func DetectTargetFormat(path string) Format {
	return extFormat(path)
}

func extFormat(path string) Format {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return Normalize(ext)
}

func looksLikeHTML(buf []byte) bool {
	head := strings.ToLower(string(bytes.TrimLeft(buf, " \t\r\n")))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
