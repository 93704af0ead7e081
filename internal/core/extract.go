package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads a source file and returns its plain text plus
// extraction metadata. PDFs go through the pdf library page by page;
// .txt and .md are read as-is. Anything unreadable or empty is an
// ErrExtractionFailure so the caller can skip the file and move on.
func ExtractText(path string) (string, map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailure, path, err)
	}

	var text string
	metadata := map[string]string{
		"file_size": fmt.Sprintf("%d", info.Size()),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path, metadata)
	case ".txt", ".md":
		var raw []byte
		raw, err = os.ReadFile(path)
		text = string(raw)
	default:
		return "", nil, fmt.Errorf("%w: %s: unsupported file type", ErrExtractionFailure, path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailure, path, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: %s: no text extracted", ErrExtractionFailure, path)
	}
	return text, metadata, nil
}

func extractPDF(path string, metadata map[string]string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %v", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	metadata["num_pages"] = fmt.Sprintf("%d", numPages)

	var sb strings.Builder
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single bad page does not fail the document.
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n\n--- Page %d ---\n\n", pageNum)
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}
