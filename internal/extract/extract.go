// Package extract pulls plain text out of uploaded application
// documents. PDF, DOCX, and plain text are supported; extraction
// happens inline during upload so a conversion never waits on it.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	docxreader "github.com/nguyenthenguyen/docx"

	"swisscv-backend/internal/shared/storage/object"
)

var (
	// ErrUnsupportedFormat reports a file type outside PDF, DOCX, and
	// plain text.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction reports a supported file whose content could not
	// be read.
	ErrExtraction = errors.New("text extraction failed")
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

// ExtractText pulls text from a stored object and persists a derived
// plain-text copy next to it. It returns the text and the storage key
// of the derived copy.
func ExtractText(ctx context.Context, store object.ObjectStore, fileKey string, mimeType string, fileName string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", "", fmt.Errorf("extract text key=%s mime=%s: read: %w", fileKey, mimeType, err)
	}

	text, err := ExtractTextFromBytes(ctx, raw, mimeType, fileName)
	if err != nil {
		return "", "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}

	extractedKey := fileKey + ".extracted.txt"
	if _, err := store.SaveWithKey(ctx, extractedKey, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", "", fmt.Errorf("extract text key=%s mime=%s: persist: %w", fileKey, mimeType, err)
	}

	return text, extractedKey, nil
}

// ExtractTextFromBytes extracts text from an in-memory payload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	switch normalized {
	case mimePDF:
		return extractPDF(data)
	case mimeDOCX:
		return extractDOCX(data)
	case mimeText:
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, normalized)
	}
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrExtraction, err)
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf: %v", ErrExtraction, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf: %v", ErrExtraction, err)
	}
	return buf.String(), nil
}

// extractDOCX reads the document through the docx library first and
// falls back to walking the archive for word/document.xml, which also
// covers files the library refuses (missing headers, odd part names).
func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty docx payload", ErrExtraction)
	}

	if doc, err := docxreader.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data))); err == nil {
		defer doc.Close()
		if text := strings.TrimSpace(stripDocxXML(doc.Editable().GetContent())); text != "" {
			return text, nil
		}
	}

	return extractDOCXFromZip(data)
}

func extractDOCXFromZip(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrExtraction, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: document.xml not found", ErrExtraction)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %v", ErrExtraction, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: read document.xml: %v", ErrExtraction, err)
	}

	return stripDocxXML(string(raw)), nil
}

// stripDocxXML collects character data and inserts a newline after
// each paragraph and line break.
func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case "application/zip":
		if mapped := mapOOXMLFromZip(data); mapped != "" {
			return mapped
		}
		return mimeFromExtension(fileName, clean)
	case "", "application/octet-stream":
		return mimeFromExtension(fileName, clean)
	default:
		return clean
	}
}

func mimeFromExtension(fileName string, fallback string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".txt":
		return mimeText
	default:
		return fallback
	}
}

func mapOOXMLFromZip(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		switch name {
		case "word/document.xml":
			return mimeDOCX
		case "xl/workbook.xml":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case "ppt/presentation.xml":
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
	}
	return ""
}
