package agent

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanOutput strips Markdown code-fence markers from a model response so an
// HTML fragment can be rendered directly. Models wrap table output in fences
// often enough that this is mandatory post-processing. The function is
// idempotent: cleaning already-clean text returns it unchanged.
func CleanOutput(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```html") {
		cleaned = cleaned[7:]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[3:]
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}
	cleaned = strings.ReplaceAll(cleaned, "```html", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// HasTable reports whether the fragment contains a table element. Model HTML
// is untrusted text: before rendering a response as a timetable we check the
// declared shape actually appeared.
func HasTable(fragment string) bool {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), nil)
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if containsTable(n) {
			return true
		}
	}
	return false
}

func containsTable(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "table" {
		return true
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if containsTable(child) {
			return true
		}
	}
	return false
}
