package loader

import (
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"booq/types"
)

var errNoPages = errors.New("document has no pages")

// PageCount returns the number of pages of a stored file. Non-PDF files are
// treated as a single page.
func PageCount(path string, fileType types.FileType) (int, error) {
	if fileType != types.FilePDF {
		return 1, nil
	}

	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", path, errNoPages)
	}
	return n, nil
}
