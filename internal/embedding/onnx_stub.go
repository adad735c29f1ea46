//go:build !cgo
// +build !cgo

package embedding

import "errors"

// ONNXEmbedder stub for builds without CGO; see onnx.go for the real one.
type ONNXEmbedder = HashEmbedder

// NewONNXEmbedder always fails without CGO; callers fall back to the hash
// embedder.
func NewONNXEmbedder(_ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
