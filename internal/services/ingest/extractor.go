// -----------------------------------------------------------------------
// Content Extractor - Normalize uploaded files to markdown
// PDF text extraction uses pdfcpu; HTML conversion uses html-to-markdown
// -----------------------------------------------------------------------

package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// Extractor normalizes uploaded file content to markdown
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// NewExtractor creates a new content extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "respondeo-ingest")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// DetectSourceType maps a filename to a source type
func DetectSourceType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".html", ".htm":
		return "html"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}

// Extract converts raw file content to markdown based on source type
func (e *Extractor) Extract(ctx context.Context, sourceType string, content []byte) (string, error) {
	switch sourceType {
	case "pdf":
		return e.extractPDF(ctx, content)
	case "html":
		return e.extractHTML(string(content))
	case "markdown", "text":
		return string(content), nil
	default:
		return "", fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// extractPDF extracts text from PDF bytes using pdfcpu.
// pdfcpu has no direct text API, so content is extracted to files and read
// back in page order.
func (e *Extractor) extractPDF(ctx context.Context, pdfContent []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Each extraction gets its own work directory so concurrent uploads
	// cannot collide on temp paths.
	workDir, err := os.MkdirTemp(e.tempDir, "extract-")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	tempFile := filepath.Join(workDir, "source.pdf")
	if err := os.WriteFile(tempFile, pdfContent, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction output dir: %w", err)
	}

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	// Read extracted content files keyed by page number. pdfcpu names the
	// files "<base>_Content_page_<n>.txt"; parse the trailing number so the
	// prefix shape doesn't matter.
	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		pageNum, ok := pageNumberFromName(file.Name())
		if !ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = string(content)
	}

	var fullText strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok || text == "" {
			continue
		}
		if fullText.Len() > 0 {
			fullText.WriteString("\n\n")
		}
		fullText.WriteString(text)
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Int("text_length", fullText.Len()).
		Msg("Extracted PDF text")

	return fullText.String(), nil
}

// pageNumberFromName parses the page number from an extracted content
// filename such as "doc_Content_page_3.txt".
func pageNumberFromName(name string) (int, bool) {
	idx := strings.LastIndex(name, "page_")
	if idx < 0 {
		return 0, false
	}
	numPart := strings.TrimSuffix(name[idx+len("page_"):], filepath.Ext(name))
	var pageNum int
	if _, err := fmt.Sscanf(numPart, "%d", &pageNum); err != nil {
		return 0, false
	}
	return pageNum, true
}

// extractHTML converts HTML content to markdown, falling back to tag
// stripping when conversion fails or produces empty output.
func (e *Extractor) extractHTML(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	mdConverter := md.NewConverter("", true, nil)
	converted, err := mdConverter.ConvertString(html)
	if err != nil {
		e.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(html), nil
	}

	if strings.TrimSpace(converted) == "" {
		e.logger.Warn().
			Int("html_length", len(html)).
			Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(html), nil
	}

	return converted, nil
}

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	re := regexp.MustCompile(`<[^>]*>`)
	stripped := re.ReplaceAllString(htmlStr, "")

	spaceRe := regexp.MustCompile(`\s+`)
	cleaned := spaceRe.ReplaceAllString(stripped, " ")

	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}

// TitleFromContent derives a document title from markdown content,
// preferring the first heading, then the first non-empty line.
func TitleFromContent(markdown string, fallback string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		}
		if len(trimmed) > 80 {
			return trimmed[:80]
		}
		return trimmed
	}
	return fallback
}
