// Package models defines core data structures for raw documents and chunks.
package models

import "time"

// SourceType classifies where a RawDocument came from.
type SourceType string

const (
	// TypeSession is a conversation transcript from the session log.
	TypeSession SourceType = "session"
	// TypeWorkspace is a file from the workspace tree.
	TypeWorkspace SourceType = "workspace"
	// TypeSkill is a skill documentation file.
	TypeSkill SourceType = "skill"
	// TypeMemory is an agent memory note.
	TypeMemory SourceType = "memory"
	// TypeManual is a document added by hand via the CLI.
	TypeManual SourceType = "manual"
	// TypeAPI is a document submitted through the HTTP API.
	TypeAPI SourceType = "api"
)

// Collection names. Each collection groups sources that share one ingestion
// policy and one state marker.
const (
	CollectionSessions  = "sessions"
	CollectionWorkspace = "workspace"
	CollectionSkills    = "skills"
)

// Metadata keys recognized by the store's filter layer. Adapters may add
// extra keys; every value is a plain string.
const (
	MetaType        = "type"
	MetaSource      = "source"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// RawDocument is one unit of source material produced by an adapter.
// It is transient: adapters build it, the chunker consumes it, nothing
// persists it. Units carries the chunking units in order (formatted
// messages for transcripts, lines for files); Body is the same content
// joined for display. When Units is empty the chunker derives units from
// Body itself.
type RawDocument struct {
	Source         string
	Type           SourceType
	Body           string
	Units          []string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	SourceMetadata map[string]string
}

// Chunk is a bounded window of a RawDocument's units, the unit of
// embedding and retrieval. Index is the position among the document's
// chunks; OverlapWithPrev is how many units are repeated from the
// previous window.
type Chunk struct {
	ParentSource    string
	Index           int
	Text            string
	OverlapWithPrev int
	Metadata        map[string]string
}
