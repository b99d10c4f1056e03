package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/tabula"

	"booq/types"
)

// PageLoader renders single pages of registered files to text and caches the
// result next to the file as markdown/NNNN_page.md.
type PageLoader struct {
	root    string
	logger  *slog.Logger
	extract func(path string, page int) (string, error)
}

func NewPageLoader(root string) *PageLoader {
	return &PageLoader{
		root:    root,
		logger:  slog.Default(),
		extract: extractPDFPage,
	}
}

func (l *PageLoader) cachePath(fileID string, page int) string {
	return filepath.Join(l.root, fileID, "markdown", fmt.Sprintf("%04d_page.md", page))
}

// PageText returns the text of one page. Unsupported file types and pages
// without extractable text yield "".
func (l *PageLoader) PageText(ctx context.Context, info types.FileInfo, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page < 1 || (info.TotalPages > 0 && page > info.TotalPages) {
		return "", fmt.Errorf("page %d of %s: %w", page, info.ID, types.ErrNotFound)
	}

	cached := l.cachePath(info.ID, page)
	if data, err := os.ReadFile(cached); err == nil {
		return string(data), nil
	}

	var (
		text string
		err  error
	)
	switch info.FileType {
	case types.FilePDF:
		text, err = l.extract(info.Path, page)
	case types.FileText:
		var data []byte
		data, err = os.ReadFile(info.Path)
		text = string(data)
	default:
		l.logger.Warn("unsupported file type", "file_id", info.ID, "file_type", info.FileType)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("render page %d of %s: %v: %w", page, info.ID, err, types.ErrExternal)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(cached), 0755); err != nil {
		l.logger.Warn("cannot create page cache", "file_id", info.ID, "error", err)
		return text, nil
	}
	if err := os.WriteFile(cached, []byte(text), 0644); err != nil {
		l.logger.Warn("cannot cache page", "file_id", info.ID, "page", page, "error", err)
	}
	return text, nil
}

func extractPDFPage(path string, page int) (string, error) {
	text, warnings, err := tabula.Open(path).
		Pages(page).
		JoinParagraphs().
		Text()
	if err != nil {
		return "", err
	}
	for _, w := range warnings {
		slog.Debug("pdf extraction warning", "path", path, "page", page, "warning", w.Message)
	}
	return text, nil
}

// FileTypeOf maps a file name to the types the loader understands.
func FileTypeOf(name string) types.FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return types.FilePDF
	case ".txt", ".md":
		return types.FileText
	default:
		return types.FileUnknown
	}
}
