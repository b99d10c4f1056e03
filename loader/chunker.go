package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"booq/types"
)

const (
	ParagraphChunkSize = 1000
	paragraphSeparator = "\n\n"
)

// ChunkByParagraph groups blank-line separated paragraphs into chunks of at
// most maxSize runes. A paragraph longer than maxSize is emitted on its own.
func ChunkByParagraph(text string, maxSize int) []string {
	var chunks []string
	var buf strings.Builder
	bufLen := 0
	sepLen := utf8.RuneCountInString(paragraphSeparator)

	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			chunks = append(chunks, buf.String())
		}
		buf.Reset()
		bufLen = 0
	}

	for _, para := range strings.Split(text, paragraphSeparator) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		paraLen := utf8.RuneCountInString(para)

		if bufLen > 0 && bufLen+sepLen+paraLen > maxSize {
			flush()
		}

		if bufLen > 0 {
			buf.WriteString(paragraphSeparator)
			bufLen += sepLen
		}
		buf.WriteString(para)
		bufLen += paraLen
	}

	flush()
	return chunks
}

// Chunk cuts text into windows of size runes advancing by size-overlap.
// Windows holding only whitespace are dropped.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk size %d with overlap %d: %w", size, overlap, types.ErrValidation)
	}

	runes := []rune(text)
	var chunks []string

	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, content)
		}

		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
