// Package chunker splits raw documents into overlapping windows of units.
//
// The unit of chunking depends on the source: transcript adapters supply one
// unit per formatted message, file adapters one unit per line. Windows hold
// at most `size` units and repeat the final `overlap` units of the previous
// window so context spanning a boundary survives retrieval.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openclaw/kioku/internal/models"
)

// Chunker windows document units with a fixed size and overlap.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. size must be positive and overlap must be
// non-negative and strictly smaller than size; anything else is a
// configuration error, not a runtime condition.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits doc into overlapping windows. A document with no units yields
// nil (a no-op, not an error); a document with fewer units than the window
// size yields exactly one chunk with index 0. Each chunk's metadata carries
// type, source, chunk_index, total_chunks, and every entry of the document's
// source metadata.
func (c *Chunker) Chunk(doc *models.RawDocument) []models.Chunk {
	units := doc.Units
	if len(units) == 0 {
		units = SplitUnits(doc.Body)
	}
	if len(units) == 0 {
		return nil
	}

	sep := unitSeparator(doc.Type)
	step := c.size - c.overlap

	type window struct {
		text    string
		overlap int
	}
	var windows []window
	for i := 0; i < len(units); i += step {
		end := i + c.size
		if end > len(units) {
			end = len(units)
		}
		ov := 0
		if i > 0 {
			prevEnd := i - step + c.size
			if prevEnd > len(units) {
				prevEnd = len(units)
			}
			ov = prevEnd - i
		}
		windows = append(windows, window{
			text:    strings.Join(units[i:end], sep),
			overlap: ov,
		})
		if end >= len(units) {
			break
		}
	}

	total := strconv.Itoa(len(windows))
	chunks := make([]models.Chunk, len(windows))
	for i, w := range windows {
		meta := make(map[string]string, len(doc.SourceMetadata)+4)
		for k, v := range doc.SourceMetadata {
			meta[k] = v
		}
		meta[models.MetaType] = string(doc.Type)
		meta[models.MetaSource] = doc.Source
		meta[models.MetaChunkIndex] = strconv.Itoa(i)
		meta[models.MetaTotalChunks] = total
		chunks[i] = models.Chunk{
			ParentSource:    doc.Source,
			Index:           i,
			Text:            w.text,
			OverlapWithPrev: w.overlap,
			Metadata:        meta,
		}
	}
	return chunks
}

// unitSeparator returns the join string for chunk text: blank lines between
// transcript messages, plain newlines between file lines.
func unitSeparator(t models.SourceType) string {
	if t == models.TypeSession {
		return "\n\n"
	}
	return "\n"
}

// SplitUnits splits a body into line units, dropping a single trailing empty
// line so a final newline does not produce a phantom unit.
func SplitUnits(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	lines := strings.Split(body, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// CoerceMetadata converts dynamically typed metadata values to strings.
// The store's metadata contract accepts only scalar strings, so the
// conversion happens here at the chunking boundary rather than relying on
// the store to tolerate mixed types.
func CoerceMetadata(in map[string]interface{}) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = coerceValue(v)
	}
	return out
}

func coerceValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		// JSON numbers arrive as float64; render integers without a decimal point.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
