// Package render turns translated text into the output document returned to
// the user and writes outputs to disk.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
)

// ErrRender wraps every rendering failure.
var ErrRender = errors.New("render failed")

// Supported output formats
const (
	FormatText     = "txt"
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var rtlLanguages = map[string]bool{"ar": true, "he": true, "fa": true, "ur": true}

// Renderer produces one output format
type Renderer struct {
	Format string
	Lang   string
}

// New validates format and returns a Renderer
func New(format, lang string) (*Renderer, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatMarkdown, FormatHTML:
	default:
		return nil, fmt.Errorf("unknown output format %q: %w", format, ErrRender)
	}
	return &Renderer{Format: format, Lang: lang}, nil
}

// Render returns the output document for text
func (r *Renderer) Render(text, originalFilename string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: empty translation: %w", originalFilename, ErrRender)
	}

	switch r.Format {
	case FormatMarkdown:
		return []byte(text + "\n"), nil
	case FormatHTML:
		return r.renderHTML(text, originalFilename)
	default:
		return []byte(text + "\n"), nil
	}
}

func (r *Renderer) renderHTML(text, originalFilename string) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(text), &body); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", originalFilename, err, ErrRender)
	}

	dir := "ltr"
	if rtlLanguages[r.Lang] {
		dir = "rtl"
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "<!DOCTYPE html>\n<html lang=%q dir=%q>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		r.Lang, dir, html.EscapeString(strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))))
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// OutputName derives the output file name from the uploaded file name
func (r *Renderer) OutputName(originalFilename string) string {
	base := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	if base == "" || base == "." {
		base = "document"
	}
	return fmt.Sprintf("%s_%s.%s", base, r.Lang, r.Format)
}
