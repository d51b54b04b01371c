package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultTesseractCmd = "tesseract"
	defaultPDFToPPMCmd  = "pdftoppm"
	defaultLanguages    = "nor+eng"
)

// Option configures the engine.
type Option func(*Tesseract)

// WithTesseractCommand overrides the tesseract binary path.
func WithTesseractCommand(cmd string) Option {
	return func(t *Tesseract) {
		if cmd != "" {
			t.tesseractCmd = cmd
		}
	}
}

// WithPDFToPPMCommand overrides the pdftoppm binary path.
func WithPDFToPPMCommand(cmd string) Option {
	return func(t *Tesseract) {
		if cmd != "" {
			t.pdftoppmCmd = cmd
		}
	}
}

// WithLanguages sets the OCR language pack list, e.g. "nor+eng".
func WithLanguages(langs string) Option {
	return func(t *Tesseract) {
		if langs != "" {
			t.languages = langs
		}
	}
}

// Tesseract extracts text by shelling out to the tesseract binary. Paged
// documents are rendered to one image per page with pdftoppm and OCR'd
// page by page.
type Tesseract struct {
	tesseractCmd string
	pdftoppmCmd  string
	languages    string
}

var _ Extractor = (*Tesseract)(nil)

// NewTesseract creates an engine with the default binary names on PATH.
func NewTesseract(opts ...Option) *Tesseract {
	t := &Tesseract{
		tesseractCmd: defaultTesseractCmd,
		pdftoppmCmd:  defaultPDFToPPMCmd,
		languages:    defaultLanguages,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Extract dispatches on media type: images go straight to OCR, PDFs are
// rendered per page first. Anything else is ErrUnsupportedMedia.
func (t *Tesseract) Extract(ctx context.Context, location, mediaType string) (string, error) {
	switch {
	case mediaType == "application/pdf":
		return t.extractPDF(ctx, location)
	case strings.HasPrefix(mediaType, "image/"):
		return t.extractImage(ctx, location)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
	}
}

func (t *Tesseract) extractImage(ctx context.Context, location string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.tesseractCmd, location, "stdout", "-l", t.languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr extraction failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (t *Tesseract) extractPDF(ctx context.Context, location string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ledgerpipe-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.pdftoppmCmd, "-r", "300", "-png", location, prefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdf rendering failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to list rendered pages: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdf rendering produced no pages")
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(pages)

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		text, err := t.extractImage(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page %s: %w", filepath.Base(page), err)
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, "\n\n"), nil
}
