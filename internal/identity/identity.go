// Package identity derives stable, content-addressed chunk identifiers.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

const prefix = "chunk:"

// ChunkID returns a deterministic identifier for a chunk. The digest covers
// parent source, chunk index, and the chunk text, so re-ingesting unchanged
// content yields the same ID while any edit yields a new one. Keying on
// (source, index) alone is not enough: re-chunking after an edit can produce
// two chunks that share an index but differ in content, and those must not
// collide. Fields are length-framed so adjacent fields cannot blur into each
// other.
func ChunkID(parentSource string, chunkIndex int, text string) string {
	h := sha256.New()
	writeFramed(h, []byte(parentSource))

	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], uint64(chunkIndex))
	h.Write(idx[:])

	writeFramed(h, []byte(text))
	return prefix + hex.EncodeToString(h.Sum(nil))
}

func writeFramed(h hash.Hash, b []byte) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}
