package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openclaw/kioku/internal/models"
	"go.uber.org/zap"
)

// skillFileName is the documentation file each skill directory carries.
const skillFileName = "SKILL.md"

// SkillsAdapter finds skill documentation files under one or more skill
// roots. It is a specialization of the tree walk: only SKILL.md files are
// yielded, tagged type=skill with source "skill:{name}" derived from the
// containing directory.
type SkillsAdapter struct {
	roots  []string
	logger *zap.Logger
}

// SkillsOption configures a SkillsAdapter.
type SkillsOption func(*SkillsAdapter)

// WithSkillsLogger sets a logger for skipped-file warnings.
func WithSkillsLogger(l *zap.Logger) SkillsOption {
	return func(a *SkillsAdapter) { a.logger = l }
}

// NewSkillsAdapter creates an adapter over the given roots. Roots that do
// not exist are tolerated as long as at least one does.
func NewSkillsAdapter(roots []string, opts ...SkillsOption) *SkillsAdapter {
	a := &SkillsAdapter{roots: roots}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Marker returns the newest modification time (epoch seconds) across skill
// files. It fails when none of the roots exist.
func (a *SkillsAdapter) Marker() (int64, error) {
	files, err := a.skillFiles()
	if err != nil {
		return 0, err
	}
	var latest int64
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if m := info.ModTime().Unix(); m > latest {
			latest = m
		}
	}
	return latest, nil
}

// Scan streams one document per skill file.
func (a *SkillsAdapter) Scan(ctx context.Context, fn func(*models.RawDocument) error) error {
	files, err := a.skillFiles()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, ok := a.readSkill(path)
		if !ok {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (a *SkillsAdapter) skillFiles() ([]string, error) {
	existing := 0
	var files []string
	for _, root := range a.roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		existing++
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == skillFileName {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk skills root %s: %w", root, err)
		}
	}
	if existing == 0 {
		return nil, fmt.Errorf("no skills directory found (looked in %s)", strings.Join(a.roots, ", "))
	}
	return files, nil
}

func (a *SkillsAdapter) readSkill(path string) (*models.RawDocument, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("skill file unreadable, skipping", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	name := filepath.Base(filepath.Dir(path))
	return &models.RawDocument{
		Source:     "skill:" + name,
		Type:       models.TypeSkill,
		Body:       string(content),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		SourceMetadata: map[string]string{
			"skill_name": name,
			"file_path":  path,
			"file_size":  strconv.FormatInt(info.Size(), 10),
		},
	}, true
}
