// Package state tracks per-collection ingestion markers in a JSON file.
package state

import (
	"encoding/json"
	"time"

	"github.com/openclaw/kioku/internal/models"
)

// IndexState is the persisted ingestion state: one modification marker per
// managed collection (epoch seconds) plus run totals. It is passed into and
// returned from the orchestrator explicitly; only the Tracker touches disk.
//
// Unknown JSON fields from older or newer writers are preserved across
// rewrite so the file stays forward-compatible.
type IndexState struct {
	LastSessionIndex   int64  `json:"lastSessionIndex"`
	LastWorkspaceIndex int64  `json:"lastWorkspaceIndex"`
	LastSkillsIndex    int64  `json:"lastSkillsIndex"`
	UpdatedAt          string `json:"updatedAt"`
	TotalDocuments     int64  `json:"totalDocuments"`
	SessionCount       int64  `json:"sessionCount"`

	extra map[string]json.RawMessage
}

// knownFields are the JSON keys owned by this struct; everything else is
// carried through verbatim.
var knownFields = map[string]bool{
	"lastSessionIndex":   true,
	"lastWorkspaceIndex": true,
	"lastSkillsIndex":    true,
	"updatedAt":          true,
	"totalDocuments":     true,
	"sessionCount":       true,
}

// Marker returns the stored marker for a collection, 0 when the collection
// has never been indexed.
func (s *IndexState) Marker(collection string) int64 {
	switch collection {
	case models.CollectionSessions:
		return s.LastSessionIndex
	case models.CollectionWorkspace:
		return s.LastWorkspaceIndex
	case models.CollectionSkills:
		return s.LastSkillsIndex
	default:
		return 0
	}
}

// SetMarker records the marker for a collection. Unrecognized collections are
// ignored.
func (s *IndexState) SetMarker(collection string, marker int64) {
	switch collection {
	case models.CollectionSessions:
		s.LastSessionIndex = marker
	case models.CollectionWorkspace:
		s.LastWorkspaceIndex = marker
	case models.CollectionSkills:
		s.LastSkillsIndex = marker
	}
}

// ShouldProcess reports whether a collection whose newest source carries
// candidateMarker needs reprocessing: true only when the candidate is
// strictly newer than the stored marker.
func (s *IndexState) ShouldProcess(collection string, candidateMarker int64) bool {
	return candidateMarker > s.Marker(collection)
}

// Touch stamps UpdatedAt with the current UTC time in RFC 3339 form.
func (s *IndexState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC().Format(time.RFC3339)
}

// MarshalJSON emits the known fields merged over any preserved unknown
// fields.
func (s *IndexState) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.extra)+6)
	for k, v := range s.extra {
		out[k] = v
	}
	out["lastSessionIndex"] = s.LastSessionIndex
	out["lastWorkspaceIndex"] = s.LastWorkspaceIndex
	out["lastSkillsIndex"] = s.LastSkillsIndex
	out["updatedAt"] = s.UpdatedAt
	out["totalDocuments"] = s.TotalDocuments
	out["sessionCount"] = s.SessionCount
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and retains everything else for the
// next write. Missing fields default to zero.
func (s *IndexState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	unmarshalField(raw, "lastSessionIndex", &s.LastSessionIndex)
	unmarshalField(raw, "lastWorkspaceIndex", &s.LastWorkspaceIndex)
	unmarshalField(raw, "lastSkillsIndex", &s.LastSkillsIndex)
	unmarshalField(raw, "updatedAt", &s.UpdatedAt)
	unmarshalField(raw, "totalDocuments", &s.TotalDocuments)
	unmarshalField(raw, "sessionCount", &s.SessionCount)
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[k] = v
	}
	return nil
}

func unmarshalField[T any](raw map[string]json.RawMessage, key string, dst *T) {
	if v, ok := raw[key]; ok {
		// A field that fails to parse is treated as absent.
		_ = json.Unmarshal(v, dst)
	}
}
