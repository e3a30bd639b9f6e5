package retrieval

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000

	separator     = "\n\n"
	pageSeparator = "\f"
)

// ErrDocumentUnavailable means the reference document could not be read.
var ErrDocumentUnavailable = errors.New("reference document is unavailable")

// LoadDocument reads the reference document and returns its pages. Pages are
// separated by form feeds, as produced by pdftotext; a file without form feeds
// is a single page.
func LoadDocument(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrDocumentUnavailable)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentUnavailable, err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, pageSeparator), nil
}

// SplitPages chunks every page independently and concatenates the results.
func SplitPages(pages []string, size int) []string {
	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, Split(page, size)...)
	}
	return chunks
}

// Split breaks text on blank lines and greedily merges adjacent paragraphs,
// joined by a blank line, into chunks of at most size characters. Chunks never
// overlap. A paragraph longer than size is cut into size-long pieces.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var pieces []string
	for _, p := range strings.Split(text, separator) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pieces = append(pieces, cut(p, size)...)
	}

	sepLen := len([]rune(separator))

	var (
		chunks  []string
		current []string
		total   int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current = current[:0]
		total = 0
	}

	for _, p := range pieces {
		n := len([]rune(p))
		extra := n
		if len(current) > 0 {
			extra += sepLen
		}
		if total+extra > size {
			flush()
			extra = n
		}
		current = append(current, p)
		total += extra
	}
	flush()

	return chunks
}

func cut(p string, size int) []string {
	runes := []rune(p)
	if len(runes) <= size {
		return []string{p}
	}

	var out []string
	for len(runes) > 0 {
		n := min(size, len(runes))
		if piece := strings.TrimSpace(string(runes[:n])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[n:]
	}
	return out
}
