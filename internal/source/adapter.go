// Package source turns raw external material (session transcripts, file
// trees, skill docs) into streams of raw documents for the ingestion
// pipeline.
package source

import (
	"context"

	"github.com/openclaw/kioku/internal/models"
)

// Adapter produces a lazy, restartable stream of raw documents from one root
// location. An adapter owns nothing beyond the lifetime of the stream.
type Adapter interface {
	// Marker returns the latest modification marker (epoch seconds) across
	// the adapter's sources. The pipeline compares it against the stored
	// state to decide whether the collection needs reprocessing. It fails
	// only when the root location does not exist.
	Marker() (int64, error)

	// Scan streams documents to fn in a stable order. Individual unreadable
	// files or malformed lines are logged and skipped; an error returned by
	// fn aborts the scan.
	Scan(ctx context.Context, fn func(*models.RawDocument) error) error
}
