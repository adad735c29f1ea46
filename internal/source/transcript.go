package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openclaw/kioku/internal/chunker"
	"github.com/openclaw/kioku/internal/models"
	"github.com/openclaw/kioku/pkg/utils"
	"go.uber.org/zap"
)

// Limits for rendering sub-events into chunk text. Tool results and thinking
// blocks can be huge; only a prefix carries retrieval value.
const (
	thinkingLimit   = 500
	toolArgsLimit   = 100
	toolResultLimit = 500
)

// Line length ceiling for the transcript scanner; single events with large
// embedded tool results can exceed bufio's default.
const maxEventLine = 10 * 1024 * 1024

// TranscriptAdapter reads append-only session logs: one *.jsonl file per
// session, one JSON event per line. Message events are normalized into one
// formatted unit per turn; session metadata lines and unrecognized event
// types are ignored.
type TranscriptAdapter struct {
	dir    string
	logger *zap.Logger
}

// TranscriptOption configures a TranscriptAdapter.
type TranscriptOption func(*TranscriptAdapter)

// WithTranscriptLogger sets a logger for skipped-line warnings.
func WithTranscriptLogger(l *zap.Logger) TranscriptOption {
	return func(a *TranscriptAdapter) { a.logger = l }
}

// NewTranscriptAdapter creates an adapter over the sessions directory.
func NewTranscriptAdapter(dir string, opts ...TranscriptOption) *TranscriptAdapter {
	a := &TranscriptAdapter{dir: dir}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Marker returns the newest modification time (epoch seconds) across session
// files. A missing sessions directory is a hard error: the whole run is
// misconfigured, not just one file.
func (a *TranscriptAdapter) Marker() (int64, error) {
	files, err := a.sessionFiles()
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

// Scan parses each session file into one RawDocument whose units are the
// formatted messages. Sessions with no usable messages are skipped.
func (a *TranscriptAdapter) Scan(ctx context.Context, fn func(*models.RawDocument) error) error {
	files, err := a.sessionFiles()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := a.parseSessionFile(path)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn("session file unreadable, skipping",
					zap.String("path", path), zap.Error(err))
			}
			continue
		}
		if doc == nil {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (a *TranscriptAdapter) sessionFiles() ([]string, error) {
	if _, err := os.Stat(a.dir); err != nil {
		return nil, fmt.Errorf("sessions directory: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(a.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// transcriptEvent is one line of the session log. Only the fields the
// ingestor cares about are decoded; everything else rides along untouched.
type transcriptEvent struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Timestamp  json.RawMessage    `json:"timestamp"`
	SessionKey string             `json:"sessionKey"`
	Message    *transcriptMessage `json:"message"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured message content list.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

func (a *TranscriptAdapter) parseSessionFile(path string) (*models.RawDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sessionKey := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	var units []string
	var firstTS, lastTS string
	messageCount := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev transcriptEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			if a.logger != nil {
				a.logger.Warn("malformed transcript line, skipping",
					zap.String("path", path), zap.Int("line", lineNum), zap.Error(err))
			}
			continue
		}
		// The first line carries session metadata, not dialogue.
		if ev.Type != "message" || ev.Message == nil {
			continue
		}
		text := formatContent(ev.Message.Content)
		if strings.TrimSpace(text) == "" {
			continue
		}
		role := ev.Message.Role
		if role == "" {
			role = "unknown"
		}
		units = append(units, strings.ToUpper(role)+": "+text)
		messageCount++

		ts := rawToString(ev.Timestamp)
		if firstTS == "" {
			firstTS = ts
		}
		if ts != "" {
			lastTS = ts
		}
		if ev.SessionKey != "" {
			sessionKey = ev.SessionKey
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	meta := chunker.CoerceMetadata(map[string]interface{}{
		"session_key":   sessionKey,
		"message_count": messageCount,
		"start_time":    firstTS,
		"end_time":      lastTS,
	})
	return &models.RawDocument{
		Source:         sessionKey,
		Type:           models.TypeSession,
		Body:           strings.Join(units, "\n\n"),
		Units:          units,
		CreatedAt:      info.ModTime(),
		ModifiedAt:     info.ModTime(),
		SourceMetadata: meta,
	}, nil
}

// formatContent renders message content to text. Content is either a plain
// string or a list of typed blocks; blocks are rendered with labeled
// sections so turns, reasoning, tool calls, and tool results interleave in
// one readable unit. The exact template is a local formatting decision; what
// matters is that it is stable, since chunk identity hashes it.
func formatContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return utils.Truncate(rawToString(raw), toolResultLimit)
	}
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case "thinking":
			if b.Thinking != "" {
				parts = append(parts, "[Thinking: "+utils.Truncate(b.Thinking, thinkingLimit)+"]")
			}
		case "toolCall":
			name := b.Name
			if name == "" {
				name = "unknown"
			}
			args := utils.Truncate(rawToString(b.Arguments), toolArgsLimit)
			parts = append(parts, "[Tool: "+name+"("+args+")]")
		case "toolResult":
			result := b.Text
			if result == "" {
				result = rawToString(b.Result)
			}
			result = strings.TrimSpace(result)
			if result != "" {
				parts = append(parts, "[Tool Result: "+utils.Truncate(result, toolResultLimit)+"]")
			}
		}
		// Unrecognized block types are ignored, not fatal.
	}
	return strings.Join(parts, "\n")
}

// rawToString renders an arbitrary JSON value as a plain string: strings
// unquoted, numbers verbatim, everything else as compact JSON.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
