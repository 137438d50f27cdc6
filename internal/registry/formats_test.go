// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"markdown", "md"},
		{"md", "md"},
		{"MD", "md"},
		{".md", "md"},
		{"htm", "html"},
		{"HTML", "html"},
		{"jpeg", "jpg"},
		{"tif", "tiff"},
		{"text", "txt"},
		{"yml", "yaml"},
		{" pdf ", "pdf"},
		{"", ""},
		{"docx", "docx"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConversionKey(t *testing.T) {
	if got := ConversionKey("md", "pdf"); got != "md2pdf" {
		t.Errorf("ConversionKey = %q, want md2pdf", got)
	}
}

func TestDetectSourceFormat(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		want    Format
	}{
		{"pdf magic", "paper.bin", []byte("%PDF-1.7\n..."), "pdf"},
		{"zip container with docx extension", "report.docx", []byte("PK\x03\x04rest"), "docx"},
		{"zip container with xlsx extension", "table.xlsx", []byte("PK\x03\x04rest"), "xlsx"},
		{"zip container without extension", "blob", []byte("PK\x03\x04rest"), "docx"},
		{"rtf magic", "memo.bin", []byte("{\\rtf1\\ansi"), "rtf"},
		{"html doctype", "page.bin", []byte("  <!DOCTYPE html><html>"), "html"},
		{"html tag", "page.bin", []byte("<html lang=\"en\">"), "html"},
		{"png magic", "img.bin", []byte("\x89PNG\r\n\x1a\nrest"), "png"},
		{"jpeg magic", "img.bin", []byte{0xff, 0xd8, 0xff, 0xe0}, "jpg"},
		{"extension fallback", "notes.markdown", []byte("# Heading\n"), "md"},
		{"no extension no magic", "blob2", []byte("plain words"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}
			if got := DetectSourceFormat(path); got != tt.want {
				t.Errorf("DetectSourceFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSourceFormatMissingFile(t *testing.T) {
	// Unreadable file falls back to the extension.
	if got := DetectSourceFormat(filepath.Join(t.TempDir(), "gone.md")); got != "md" {
		t.Errorf("DetectSourceFormat = %q, want md", got)
	}
}

func TestDetectTargetFormat(t *testing.T) {
	if got := DetectTargetFormat("/tmp/out.PDF"); got != "pdf" {
		t.Errorf("DetectTargetFormat = %q, want pdf", got)
	}
	if got := DetectTargetFormat("/tmp/out"); got != "" {
		t.Errorf("DetectTargetFormat = %q, want empty", got)
	}
}
