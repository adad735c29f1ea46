// Package embedding produces vector embeddings for chunk text.
//
// The store embeds locally: an ONNX MiniLM model when built with CGO and the
// model file is present, otherwise a deterministic hash embedder. Either way
// the pipeline works without network access once the model file is
// materialized.
package embedding

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New selects an embedder: ONNX when the model file exists and the binary
// was built with CGO, the hash embedder otherwise. The fallback is logged so
// an operator notices degraded retrieval quality.
func New(modelPath string, dimensions, maxTokens, cacheSize int, logger *zap.Logger) (Embedder, error) {
	if modelPath != "" {
		if _, err := os.Stat(modelPath); err == nil {
			emb, err := NewONNXEmbedder(modelPath, dimensions, maxTokens, cacheSize)
			if err == nil {
				return emb, nil
			}
			if logger != nil {
				logger.Warn("ONNX embedder unavailable, falling back to hash embedder", zap.Error(err))
			}
		} else if logger != nil {
			logger.Warn("embedding model not found, falling back to hash embedder",
				zap.String("model_path", modelPath))
		}
	}
	return NewHashEmbedder(dimensions), nil
}
