// Package knowledge loads the academic knowledge base from a local document
// directory into a single in-memory text blob used to ground model prompts.
package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// Base holds the concatenated knowledge-base text.
type Base struct {
	text  string
	files []string
}

// Load reads every .pdf and .txt file under dir, extracts their text, and
// concatenates the results in file-name order. A missing or empty directory
// yields an empty base, not an error: the assistant degrades to answering
// from general knowledge. Documents that fail to extract are logged and
// skipped, so one corrupt file never loses the rest of the base.
func Load(dir string) (*Base, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Base{}, nil
		}
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".pdf" || ext == ".txt" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return &Base{}, nil
	}

	// Extract concurrently, keep indexed slots so concatenation stays in
	// name order.
	texts := make([]string, len(names))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			path := filepath.Join(dir, name)
			var text string
			var err error
			if strings.EqualFold(filepath.Ext(name), ".pdf") {
				text, err = extractPDF(path)
			} else {
				text, err = extractText(path)
			}
			if err != nil {
				slog.Warn("skipping unreadable knowledge file", "file", name, "err", err)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	// extraction failures stay out of their slots instead of failing the load
	_ = g.Wait()

	var b strings.Builder
	var loaded []string
	for i, text := range texts {
		if text == "" {
			slog.Warn("knowledge file yielded no text", "file", names[i])
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		loaded = append(loaded, names[i])
	}
	return &Base{text: b.String(), files: loaded}, nil
}

// Text returns the full concatenated knowledge-base text.
func (b *Base) Text() string {
	if b == nil {
		return ""
	}
	return b.text
}

// Prefix returns at most n runes of the knowledge-base text.
func (b *Base) Prefix(n int) string {
	if b == nil || n <= 0 {
		return ""
	}
	runes := []rune(b.text)
	if len(runes) <= n {
		return b.text
	}
	return string(runes[:n])
}

// Empty reports whether no text was loaded.
func (b *Base) Empty() bool {
	return b == nil || b.text == ""
}

// Files lists the documents that contributed text, in load order.
func (b *Base) Files() []string {
	if b == nil {
		return nil
	}
	return b.files
}

// extractPDF pulls plain text page by page. Pages the parser chokes on are
// skipped so one bad page does not lose the whole document.
func extractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "file", filepath.Base(path), "page", i)
			continue
		}
		text = normalize(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return normalize(string(data)), nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
