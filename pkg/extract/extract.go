// Package extract turns uploaded exercise documents into plain UTF-8 text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// ErrUnsupportedFormat indicates the document type cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNoExtractableText indicates the document contained no text.
	ErrNoExtractableText = errors.New("no extractable text")
)

// Format is a document family the extractor understands.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

const (
	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	pdfMIME  = "application/pdf"
)

// Document is the extracted text plus the format it was read as.
type Document struct {
	Text   string
	Format Format
	MIME   string
}

// Extractor reads text out of uploaded files.
type Extractor struct {
	sanitizer *bluemonday.Policy
}

// New constructs an Extractor.
func New() *Extractor {
	return &Extractor{sanitizer: bluemonday.StrictPolicy()}
}

// Extract detects the format of data, preferring content sniffing and using
// hint (a filename or MIME type) to break ties, and returns its text.
func (e *Extractor) Extract(data []byte, hint string) (Document, error) {
	detected := mimetype.Detect(data)
	format, err := resolveFormat(detected, hint)
	if err != nil {
		return Document{}, err
	}

	var text string
	switch format {
	case FormatDOCX:
		text, err = docxText(data)
	case FormatPDF:
		text, err = pdfText(data)
	case FormatHTML:
		text = e.sanitizer.Sanitize(blockBreaks.ReplaceAllString(string(data), "$0\n"))
		text = html.UnescapeString(text)
	default:
		if !utf8.Valid(data) {
			return Document{}, fmt.Errorf("%w: text is not valid utf-8", ErrUnsupportedFormat)
		}
		text = strings.TrimPrefix(string(data), "\ufeff")
	}
	if err != nil {
		return Document{}, err
	}

	text = normalizeNewlines(text)
	if strings.TrimSpace(text) == "" {
		return Document{}, ErrNoExtractableText
	}

	return Document{Text: text, Format: format, MIME: detected.String()}, nil
}

func resolveFormat(detected *mimetype.MIME, hint string) (Format, error) {
	hint = strings.ToLower(strings.TrimSpace(hint))
	ext := filepath.Ext(hint)

	switch {
	case detected.Is(docxMIME) || ext == ".docx" || hint == docxMIME:
		if !detected.Is(docxMIME) && !detected.Is("application/zip") {
			return "", fmt.Errorf("%w: %s is not a docx container", ErrUnsupportedFormat, detected.String())
		}
		return FormatDOCX, nil
	case detected.Is(pdfMIME) || ext == ".pdf" || hint == pdfMIME:
		if !detected.Is(pdfMIME) {
			return "", fmt.Errorf("%w: %s is not a pdf document", ErrUnsupportedFormat, detected.String())
		}
		return FormatPDF, nil
	case detected.Is("application/json") || ext == ".json" || hint == "application/json":
		return FormatJSON, nil
	case detected.Is("text/html") || ext == ".html" || ext == ".htm" || hint == "text/html":
		return FormatHTML, nil
	case detected.Is("text/plain") || ext == ".txt" || ext == ".md" || hint == "text/plain":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected.String())
	}
}

var blockBreaks = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|blockquote)>|<br\s*/?>`)

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// pdfText reads the plain text layer of every page. Scanned PDFs without a
// text layer come back empty and surface as ErrNoExtractableText.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", ErrUnsupportedFormat, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	body, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(body), nil
}

// docxText concatenates the runs of word/document.xml, one line per paragraph.
func docxText(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var body io.ReadCloser
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			body, err = file.Open()
			if err != nil {
				return "", fmt.Errorf("open document part: %w", err)
			}
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: missing word/document.xml", ErrUnsupportedFormat)
	}
	defer body.Close()

	decoder := xml.NewDecoder(body)
	var (
		builder strings.Builder
		inText  bool
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document part: %w", err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				builder.WriteByte('\t')
			case "br", "cr":
				builder.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				builder.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				builder.Write(el)
			}
		}
	}

	return builder.String(), nil
}
