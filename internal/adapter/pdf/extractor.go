// Package pdf extracts text content from PDF documents using pdfcpu.
package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/finlens-ai/finlens/internal/port"
)

// Extractor implements port.TextExtractor using pdfcpu.
type Extractor struct {
	tempDir string
}

var _ port.TextExtractor = (*Extractor)(nil)

// NewExtractor creates a PDF text extractor with a scratch directory for
// pdfcpu's per-page output.
func NewExtractor() *Extractor {
	tempDir := filepath.Join(os.TempDir(), "finlens-pdf")
	os.MkdirAll(tempDir, 0o755)
	return &Extractor{tempDir: tempDir}
}

// ExtractText returns the concatenated text of every page in the PDF at
// path, pages separated by a newline.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, "pages_"+uuid.NewString())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("read scratch dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(content)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := pageTexts[pageNum]
		if text == "" {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return strings.TrimSpace(builder.String()), nil
}
