package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// DefaultExtensions is the whitelist of file suffixes ingest_documents
// walks by default (§4.M).
var DefaultExtensions = map[string]bool{
	".md": true, ".txt": true, ".pdf": true, ".docx": true,
	".pptx": true, ".xlsx": true, ".html": true, ".htm": true,
	".png": true, ".jpg": true, ".jpeg": true,
}

// Extract converts the file at path into plain/markdown text according
// to its extension. Binary formats the module cannot parse (PDF, DOCX,
// PPTX, XLSX, images — no such parser library is among the pack's
// dependencies; see DESIGN.md) return an error so the caller can skip
// the file per §4.M's "skip and continue unless strict=true".
func Extract(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return readTextFile(path)
	case ".html", ".htm":
		return extractHTML(path)
	case ".pdf":
		return "", fmt.Errorf("no PDF extractor wired for %s", path)
	case ".docx":
		return "", fmt.Errorf("no DOCX extractor wired for %s", path)
	case ".pptx":
		return "", fmt.Errorf("no PPTX extractor wired for %s", path)
	case ".xlsx":
		return "", fmt.Errorf("no XLSX extractor wired for %s", path)
	case ".png", ".jpg", ".jpeg":
		return "", fmt.Errorf("no OCR extractor wired for %s", path)
	default:
		return readTextFile(path)
	}
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// extractHTML strips markup down to its visible text using
// golang.org/x/net/html's tokenizer, preserving block-level line breaks.
func extractHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	tokenizer := html.NewTokenizer(strings.NewReader(string(data)))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String(), nil
		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style":
				skipUntilClosingTag(tokenizer, string(name))
			}
		}
	}
}

func skipUntilClosingTag(tokenizer *html.Tokenizer, tag string) {
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return
		}
		if tt == html.EndTagToken {
			name, _ := tokenizer.TagName()
			if string(name) == tag {
				return
			}
		}
	}
}
