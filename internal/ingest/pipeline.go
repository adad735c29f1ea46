// Package ingest orchestrates the ingestion run: it decides per collection
// whether sources changed, pulls raw documents from adapters, chunks and
// identifies them, and upserts the results into the vector store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/kioku/internal/chunker"
	"github.com/openclaw/kioku/internal/identity"
	"github.com/openclaw/kioku/internal/models"
	"github.com/openclaw/kioku/internal/source"
	"github.com/openclaw/kioku/internal/state"
	"github.com/openclaw/kioku/internal/store"
)

// DefaultBatchSize is how many records are sent to the store per upsert.
const DefaultBatchSize = 50

// Collection binds a named source adapter to its chunking policy. The name
// must be one of the managed collection names so the state tracker can hold
// its marker.
type Collection struct {
	Name         string
	Adapter      source.Adapter
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline runs collections through the ingestion state machine.
type Pipeline struct {
	store     store.VectorStore
	tracker   *state.Tracker
	batchSize int
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBatchSize overrides the upsert batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// New creates a pipeline writing to st with markers tracked by tracker.
func New(st store.VectorStore, tracker *state.Tracker, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		tracker:   tracker,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one ingestion pass over the given collections. Each collection
// is decided independently: an unchanged source is skipped, a failure is
// isolated to its collection and leaves its marker untouched for retry on the
// next run. Markers for succeeded collections are committed atomically at the
// end. The returned error covers infrastructure faults (state commit); per
// collection outcomes live in the report.
func (p *Pipeline) Run(ctx context.Context, collections []Collection) (*Report, error) {
	st := p.tracker.Load()
	report := &Report{Started: time.Now()}

	for _, c := range collections {
		cr := p.runCollection(ctx, st, c)
		report.Collections = append(report.Collections, cr)
	}

	if report.Succeeded() == 0 {
		report.Finished = time.Now()
		return report, nil
	}

	if total, err := p.store.Count(ctx); err != nil {
		p.logger.Warn("failed to count store records", zap.Error(err))
	} else {
		st.TotalDocuments = total
	}
	st.Touch(time.Now())
	if err := p.tracker.Commit(st); err != nil {
		report.Finished = time.Now()
		return report, fmt.Errorf("commit state: %w", err)
	}
	report.Finished = time.Now()
	return report, nil
}

// runCollection walks one collection through DECIDE, FETCH, CHUNK, IDENTIFY
// and UPSERT. On success the marker is staged in st; the caller commits.
func (p *Pipeline) runCollection(ctx context.Context, st *state.IndexState, c Collection) CollectionReport {
	log := p.logger.With(zap.String("collection", c.Name))

	marker, err := c.Adapter.Marker()
	if err != nil {
		log.Error("failed to read source marker", zap.Error(err))
		return CollectionReport{Name: c.Name, Status: StatusFailed, Err: fmt.Errorf("read marker: %w", err)}
	}
	if !st.ShouldProcess(c.Name, marker) {
		log.Debug("sources unchanged, skipping", zap.Int64("marker", marker))
		return CollectionReport{Name: c.Name, Status: StatusSkipped, Marker: marker}
	}

	ck, err := chunker.New(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return CollectionReport{Name: c.Name, Status: StatusFailed, Err: fmt.Errorf("chunking policy: %w", err)}
	}

	var (
		batch     []store.Record
		documents int
		chunks    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.Upsert(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err = c.Adapter.Scan(ctx, func(doc *models.RawDocument) error {
		documents++
		for _, chunk := range ck.Chunk(doc) {
			chunks++
			batch = append(batch, store.Record{
				ID:       identity.ChunkID(chunk.ParentSource, chunk.Index, chunk.Text),
				Text:     chunk.Text,
				Metadata: chunk.Metadata,
			})
			if len(batch) >= p.batchSize {
				if err := flush(); err != nil {
					return fmt.Errorf("upsert batch: %w", err)
				}
			}
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		log.Error("collection ingestion failed", zap.Error(err))
		return CollectionReport{Name: c.Name, Status: StatusFailed, Documents: documents, Chunks: chunks, Err: err}
	}

	st.SetMarker(c.Name, marker)
	if c.Name == models.CollectionSessions {
		st.SessionCount = int64(documents)
	}
	log.Info("collection ingested",
		zap.Int("documents", documents),
		zap.Int("chunks", chunks),
		zap.Int64("marker", marker))
	return CollectionReport{Name: c.Name, Status: StatusSucceeded, Documents: documents, Chunks: chunks, Marker: marker}
}
