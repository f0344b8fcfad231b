// Package extract pulls translatable text out of uploaded documents.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var (
	// ErrNoText is returned when a document holds nothing but whitespace.
	ErrNoText = errors.New("document contains no translatable text")
	// ErrUnsupportedFormat is returned for file types without an extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrTooLarge is returned when a document exceeds the size limit.
	ErrTooLarge = errors.New("document too large")
)

// Extractor converts document bytes into plain text
type Extractor struct {
	// MaxBytes rejects larger documents; zero disables the check.
	MaxBytes int64
}

// Supported reports whether filename has an extension ExtractText handles
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case "", ".txt", ".text", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// ExtractText returns the text of a plain text, Markdown or HTML document.
// HTML is converted to Markdown so headings and lists survive translation.
func (e Extractor) ExtractText(data []byte, filename string) (string, error) {
	if e.MaxBytes > 0 && int64(len(data)) > e.MaxBytes {
		return "", fmt.Errorf("%s is %d bytes, limit %d: %w", filename, len(data), e.MaxBytes, ErrTooLarge)
	}

	text := decode(data)

	var err error
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case "", ".txt", ".text", ".md", ".markdown":
	case ".html", ".htm":
		text, err = htmltomarkdown.ConvertString(text)
		if err != nil {
			return "", fmt.Errorf("failed to convert HTML %s: %w", filename, err)
		}
	default:
		return "", fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrNoText)
	}
	return text, nil
}

// decode strips a UTF-8 byte order mark, replaces invalid sequences and
// normalizes line endings.
func decode(data []byte) string {
	text := strings.TrimPrefix(string(data), "\ufeff")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
