package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/kioku/internal/models"
)

func writeTreeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTreeAdapter_scan(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "notes.md", []byte("# Notes\nsome text\n"))
	writeTreeFile(t, root, "tools/run.sh", []byte("#!/bin/sh\necho hi\n"))
	writeTreeFile(t, root, "image.png", []byte{0x89, 'P', 'N', 'G'})       // disallowed extension
	writeTreeFile(t, root, "fake.md", []byte{'a', 0x00, 'b'})              // binary content
	writeTreeFile(t, root, ".git/config.md", []byte("[core]\n"))           // hidden dir
	writeTreeFile(t, root, "big.md", []byte(strings.Repeat("a\n", 40000))) // 80000 bytes

	a := NewTreeAdapter(root, []string{"md", ".sh"}, 64*1024)
	docs := scanAll(t, a)
	sources := make(map[string]*models.RawDocument)
	for _, d := range docs {
		sources[d.Source] = d
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %v", len(docs), keys(sources))
	}
	if _, ok := sources["notes.md"]; !ok {
		t.Error("notes.md missing")
	}
	doc, ok := sources["tools/run.sh"]
	if !ok {
		t.Fatal("tools/run.sh missing")
	}
	if doc.Type != models.TypeWorkspace {
		t.Errorf("type=%q", doc.Type)
	}
	if doc.SourceMetadata["file_extension"] != ".sh" {
		t.Errorf("file_extension=%q", doc.SourceMetadata["file_extension"])
	}
	if doc.SourceMetadata["file_size"] == "" || doc.SourceMetadata["file_path"] == "" {
		t.Errorf("file metadata missing: %v", doc.SourceMetadata)
	}
}

func keys(m map[string]*models.RawDocument) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestTreeAdapter_missingRootFails(t *testing.T) {
	a := NewTreeAdapter(filepath.Join(t.TempDir(), "nope"), nil, 0)
	if _, err := a.Marker(); err == nil {
		t.Error("Marker should fail for a missing root")
	}
	if err := a.Scan(context.Background(), func(*models.RawDocument) error { return nil }); err == nil {
		t.Error("Scan should fail for a missing root")
	}
}

func TestTreeAdapter_marker(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "a.md", []byte("hello\n"))
	a := NewTreeAdapter(root, []string{"md"}, 0)
	m, err := a.Marker()
	if err != nil {
		t.Fatal(err)
	}
	if m == 0 {
		t.Error("marker should reflect file mtime")
	}
}

func TestSkillsAdapter_scan(t *testing.T) {
	rootA := t.TempDir()
	rootB := filepath.Join(t.TempDir(), "missing") // tolerated: one root is enough
	writeTreeFile(t, rootA, "weather/SKILL.md", []byte("# Weather\nFetches forecasts.\n"))
	writeTreeFile(t, rootA, "weather/helper.py", []byte("print('not a skill doc')\n"))
	writeTreeFile(t, rootA, "deploy/SKILL.md", []byte("# Deploy\nShips code.\n"))

	a := NewSkillsAdapter([]string{rootA, rootB})
	docs := scanAll(t, a)
	if len(docs) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(docs))
	}
	found := map[string]bool{}
	for _, d := range docs {
		found[d.Source] = true
		if d.Type != models.TypeSkill {
			t.Errorf("type=%q", d.Type)
		}
		if d.SourceMetadata["skill_name"] == "" {
			t.Errorf("skill_name missing for %s", d.Source)
		}
	}
	if !found["skill:weather"] || !found["skill:deploy"] {
		t.Errorf("unexpected sources: %v", found)
	}
}

func TestSkillsAdapter_allRootsMissingFails(t *testing.T) {
	base := t.TempDir()
	a := NewSkillsAdapter([]string{filepath.Join(base, "x"), filepath.Join(base, "y")})
	if _, err := a.Marker(); err == nil {
		t.Error("Marker should fail when no skills root exists")
	}
}
