package main

import (
	"strings"
	"testing"
)

func TestExtractLinkMetadata(t *testing.T) {
	doc := `<!DOCTYPE html><html><head>
		<meta property="og:title" content="OG Title"/>
		<meta property="og:description" content="OG Description"/>
		<meta property="og:image" content="https://example.com/img.png"/>
		<title>Tag Title</title>
		</head><body>ignored</body></html>`

	preview := extractLinkMetadata(strings.NewReader(doc))
	if preview.Title != "OG Title" {
		t.Errorf("title expected 'OG Title', got %q", preview.Title)
	}
	if preview.Description != "OG Description" {
		t.Errorf("description expected 'OG Description', got %q", preview.Description)
	}
	if preview.ImageURL != "https://example.com/img.png" {
		t.Errorf("image expected og:image url, got %q", preview.ImageURL)
	}
}

func TestExtractLinkMetadataFallbacks(t *testing.T) {
	doc := `<html><head>
		<meta name="description" content="Meta Description">
		<title>Plain Title</title>
		</head></html>`

	preview := extractLinkMetadata(strings.NewReader(doc))
	if preview.Title != "Plain Title" {
		t.Errorf("title fallback expected 'Plain Title', got %q", preview.Title)
	}
	if preview.Description != "Meta Description" {
		t.Errorf("description fallback expected 'Meta Description', got %q", preview.Description)
	}
	if preview.ImageURL != "" {
		t.Errorf("image expected blank, got %q", preview.ImageURL)
	}
}

func TestExtractLinkMetadataTruncatedInput(t *testing.T) {
	// Body cut mid-tag, as MaxBytesReader would produce.
	doc := `<html><head><meta property="og:title" content="Short"/><meta propert`

	preview := extractLinkMetadata(strings.NewReader(doc))
	if preview.Title != "Short" {
		t.Errorf("title expected 'Short', got %q", preview.Title)
	}
}

func TestValidatePreviewURL(t *testing.T) {
	if err := validatePreviewURL("ftp://example.com/file"); err == nil {
		t.Error("non-http scheme must be rejected")
	}
	if err := validatePreviewURL("http://127.0.0.1/admin"); err == nil {
		t.Error("loopback address must be rejected")
	}
	if err := validatePreviewURL("http://169.254.169.254/latest/meta-data"); err == nil {
		t.Error("link-local address must be rejected")
	}
	if err := validatePreviewURL("not a url"); err == nil {
		t.Error("unparseable input must be rejected")
	}
}
