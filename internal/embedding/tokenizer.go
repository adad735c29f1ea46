package embedding

import "strings"

// BERT special token IDs used by the MiniLM model.
const (
	tokenCLS = 101
	tokenSEP = 102
)

// tokenize produces padded BERT-style inputs (input_ids, attention_mask,
// token_type_ids) for a single text. Token IDs come from a word hash rather
// than the model's real vocabulary; good enough to drive the session, and
// consistent across runs so cached embeddings stay valid.
func tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(wordHash(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = tokenSEP
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// wordHash returns a non-negative deterministic hash for a word.
func wordHash(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
