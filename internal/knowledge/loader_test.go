package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadMissingDirYieldsEmptyBase(t *testing.T) {
	base, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !base.Empty() {
		t.Fatalf("expected empty base, got %q", base.Text())
	}
}

func TestLoadConcatenatesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_rules.txt", "graduation requires 130 credits")
	writeFile(t, dir, "a_intro.txt", "welcome to the department")
	writeFile(t, dir, "notes.md", "ignored format")

	base, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	text := base.Text()
	introIdx := strings.Index(text, "welcome")
	rulesIdx := strings.Index(text, "graduation")
	if introIdx < 0 || rulesIdx < 0 {
		t.Fatalf("expected both files loaded, got: %q", text)
	}
	if introIdx > rulesIdx {
		t.Fatalf("expected name-sorted order, got: %q", text)
	}
	if strings.Contains(text, "ignored format") {
		t.Fatalf("unsupported extension should be skipped: %q", text)
	}
	files := base.Files()
	if len(files) != 2 || files[0] != "a_intro.txt" || files[1] != "b_rules.txt" {
		t.Fatalf("unexpected file list: %v", files)
	}
}

func TestLoadSkipsUnreadableDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_rules.txt", "graduation requires 130 credits")
	writeFile(t, dir, "b_broken.pdf", "this is not a pdf")

	base, err := Load(dir)
	if err != nil {
		t.Fatalf("one corrupt file must not fail the load: %v", err)
	}
	if !strings.Contains(base.Text(), "graduation requires 130 credits") {
		t.Fatalf("readable file should still load, got %q", base.Text())
	}
	files := base.Files()
	if len(files) != 1 || files[0] != "a_rules.txt" {
		t.Fatalf("broken pdf should be skipped, got %v", files)
	}
}

func TestLoadNormalizesWhitespace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "spacing.txt", "  course\n\n  catalog \t 2026  ")
	base, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := base.Text(); got != "course catalog 2026" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
}

func TestPrefixBoundsRunes(t *testing.T) {
	base := &Base{text: "한국어 텍스트 with mixed content"}
	if got := base.Prefix(3); got != "한국어" {
		t.Fatalf("expected rune-aware prefix, got %q", got)
	}
	if got := base.Prefix(1000); got != base.text {
		t.Fatalf("expected full text when limit exceeds length, got %q", got)
	}
	if got := base.Prefix(0); got != "" {
		t.Fatalf("expected empty prefix for zero limit, got %q", got)
	}
}

func TestLoadEmptyFilesStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "   ")
	base, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !base.Empty() {
		t.Fatalf("expected empty base, got %q", base.Text())
	}
	if len(base.Files()) != 0 {
		t.Fatalf("empty file should not count as loaded: %v", base.Files())
	}
}
