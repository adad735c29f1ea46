package identity

import (
	"strings"
	"testing"
)

func TestChunkID_deterministic(t *testing.T) {
	a := ChunkID("session-2026-02-10", 3, "USER: hello")
	b := ChunkID("session-2026-02-10", 3, "USER: hello")
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "chunk:") {
		t.Errorf("ID missing prefix: %s", a)
	}
}

func TestChunkID_contentSensitive(t *testing.T) {
	a := ChunkID("notes.md", 0, "first revision")
	b := ChunkID("notes.md", 0, "second revision")
	if a == b {
		t.Error("same (source, index) with different text must not collide")
	}
}

func TestChunkID_indexSensitive(t *testing.T) {
	a := ChunkID("notes.md", 0, "same text")
	b := ChunkID("notes.md", 1, "same text")
	if a == b {
		t.Error("different chunk indexes must not collide")
	}
}

func TestChunkID_noFieldBleed(t *testing.T) {
	// Without length framing these two would hash the same bytes.
	a := ChunkID("ab", 0, "c")
	b := ChunkID("a", 0, "bc")
	if a == b {
		t.Error("field boundaries must be part of the digest")
	}
}
