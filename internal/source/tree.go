package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openclaw/kioku/internal/extract"
	"github.com/openclaw/kioku/internal/models"
	"go.uber.org/zap"
)

// Extensions that go through the format extractor instead of the plain-text
// path. These are binary containers, so the null-byte heuristic must not see
// them.
var extractableExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".xlsx": true,
}

// TreeAdapter walks a file tree and yields one RawDocument per readable text
// file. Files outside the extension allow-list, above the size limit, or
// failing the binary heuristic are skipped, not errors.
type TreeAdapter struct {
	root        string
	extensions  map[string]bool
	maxFileSize int64
	extractor   *extract.Extractor
	logger      *zap.Logger
}

// TreeOption configures a TreeAdapter.
type TreeOption func(*TreeAdapter)

// WithTreeLogger sets a logger for skipped-file warnings.
func WithTreeLogger(l *zap.Logger) TreeOption {
	return func(a *TreeAdapter) { a.logger = l }
}

// WithExtractor sets the rich-format extractor used for .pdf/.docx/.xlsx
// files. Without it those files fall back to being skipped as binary.
func WithExtractor(e *extract.Extractor) TreeOption {
	return func(a *TreeAdapter) { a.extractor = e }
}

// NewTreeAdapter creates an adapter over root. extensions is the allow-list
// (with or without leading dots, case-insensitive); maxFileSize is in bytes.
func NewTreeAdapter(root string, extensions []string, maxFileSize int64, opts ...TreeOption) *TreeAdapter {
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = true
	}
	a := &TreeAdapter{root: root, extensions: extSet, maxFileSize: maxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Marker returns the newest modification time (epoch seconds) across files
// that pass the extension and size filters. A missing root is a hard error.
func (a *TreeAdapter) Marker() (int64, error) {
	var latest int64
	err := a.walk(func(path string, info fs.FileInfo) error {
		if m := info.ModTime().Unix(); m > latest {
			latest = m
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return latest, nil
}

// Scan walks the tree and streams one document per eligible file. The source
// is the path relative to the root.
func (a *TreeAdapter) Scan(ctx context.Context, fn func(*models.RawDocument) error) error {
	return a.walk(func(path string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, ok := a.readFile(path, info)
		if !ok {
			return nil
		}
		return fn(doc)
	})
}

// walk visits each regular file under the root that passes the extension and
// size filters. Hidden directories (".git" and friends) are pruned.
func (a *TreeAdapter) walk(visit func(path string, info fs.FileInfo) error) error {
	absRoot, err := filepath.Abs(a.root)
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return fmt.Errorf("workspace root: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("workspace root is not a directory: %s", absRoot)
	}
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if a.logger != nil {
				a.logger.Warn("walk error, skipping", zap.String("path", path), zap.Error(walkErr))
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(a.extensions) > 0 && !a.extensions[ext] {
			return nil
		}
		info, err := os.Stat(path) // resolves symlinks
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if a.maxFileSize > 0 && info.Size() > a.maxFileSize {
			if a.logger != nil {
				a.logger.Debug("file exceeds size limit, skipping",
					zap.String("path", path), zap.Int64("size", info.Size()))
			}
			return nil
		}
		return visit(path, info)
	})
}

// readFile loads one file into a RawDocument. Returns ok=false for files
// that should be skipped (unreadable, binary, empty).
func (a *TreeAdapter) readFile(path string, info fs.FileInfo) (*models.RawDocument, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	var body string
	if extractableExts[ext] && a.extractor != nil {
		text, err := a.extractor.Extract(path)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("extraction failed, skipping", zap.String("path", path), zap.Error(err))
			}
			return nil, false
		}
		body = text
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("file unreadable, skipping", zap.String("path", path), zap.Error(err))
			}
			return nil, false
		}
		if isBinary(content) {
			if a.logger != nil {
				a.logger.Debug("binary file, skipping", zap.String("path", path))
			}
			return nil, false
		}
		body = string(content)
	}
	if strings.TrimSpace(body) == "" {
		return nil, false
	}

	absRoot, _ := filepath.Abs(a.root)
	rel, err := filepath.Rel(absRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)

	return &models.RawDocument{
		Source:     rel,
		Type:       models.TypeWorkspace,
		Body:       body,
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		SourceMetadata: map[string]string{
			"file_path":      path,
			"file_size":      strconv.FormatInt(info.Size(), 10),
			"file_extension": ext,
		},
	}, true
}

// isBinary reports whether content looks binary: a null byte in the first
// 512 bytes.
func isBinary(content []byte) bool {
	sample := content
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return bytes.IndexByte(sample, 0) >= 0
}
