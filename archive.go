package core

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

// ArchiveEntry is the cold-storage record of one tool output's full text,
// keyed so the agent can recall it later without re-invoking the tool.
type ArchiveEntry struct {
	ID            string
	ToolName      string
	FilePath      string
	Content       string
	CharLength    int
	EstTokens     int
	KeyFactsCount int
	CreatedAt     int64
}

// ArchiveMemory is the append-only, cold-storage half of the context/
// memory subsystem: full tool output text, bounded by entry count and
// total characters, evicted oldest-first. Exposed to the agent as the
// archive_recall tool so a previously read file doesn't need a second
// fs_read.
type ArchiveMemory struct {
	MaxEntries    int
	MaxTotalChars int

	mu      sync.Mutex
	order   []string // insertion order, oldest first
	entries map[string]*ArchiveEntry
	seq     int
}

// NewArchiveMemory returns an ArchiveMemory with spec defaults: 200
// entries, 2,000,000 total characters.
func NewArchiveMemory() *ArchiveMemory {
	return &ArchiveMemory{MaxEntries: 200, MaxTotalChars: 2_000_000, entries: make(map[string]*ArchiveEntry)}
}

// Store appends a new entry, estimating tokens at ~4 characters each, and
// enforces the entry-count and character caps via oldest-first eviction.
func (a *ArchiveMemory) Store(toolName, filePath, content string, keyFactsCount int) *ArchiveEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	entry := &ArchiveEntry{
		ID: "archive-" + strconv.Itoa(a.seq), ToolName: toolName, FilePath: filePath,
		Content: content, CharLength: len(content), EstTokens: len(content) / 4,
		KeyFactsCount: keyFactsCount, CreatedAt: NowUnix(),
	}
	a.entries[entry.ID] = entry
	a.order = append(a.order, entry.ID)
	a.enforceLimits()
	return entry
}

func (a *ArchiveMemory) enforceLimits() {
	for len(a.order) > a.MaxEntries {
		a.evictOldest()
	}
	for a.totalChars() > a.MaxTotalChars && len(a.order) > 0 {
		a.evictOldest()
	}
}

func (a *ArchiveMemory) evictOldest() {
	if len(a.order) == 0 {
		return
	}
	oldest := a.order[0]
	a.order = a.order[1:]
	delete(a.entries, oldest)
}

func (a *ArchiveMemory) totalChars() int {
	total := 0
	for _, e := range a.entries {
		total += e.CharLength
	}
	return total
}

// Recall returns an archived entry by id.
func (a *ArchiveMemory) Recall(id string) (*ArchiveEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	return e, ok
}

// RecallByPath returns the most recently stored entry for a file path, if
// any — used when the agent asks to re-read a file it already fetched.
func (a *ArchiveMemory) RecallByPath(path string) (*ArchiveEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.order) - 1; i >= 0; i-- {
		e := a.entries[a.order[i]]
		if e != nil && e.FilePath == path {
			return e, true
		}
	}
	return nil, false
}

// archiveRecallTool exposes ArchiveMemory.Recall as a ToolPack tool so the
// LLM can reload a previously fetched tool output by its archive id.
func archiveRecallTool(archive *ArchiveMemory) PackedTool {
	return PackedTool{
		Definition: ToolDefinition{
			Name:        "archive_recall",
			Description: "Reload the full text of a previously archived tool output by its archive id.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
		},
		Invoke: func(_ context.Context, input json.RawMessage) (ToolOutput, error) {
			var params struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(input, &params); err != nil {
				return ToolOutput{Success: false, Error: "invalid input: " + err.Error()}, nil
			}
			entry, ok := archive.Recall(params.ID)
			if !ok {
				return ToolOutput{Success: false, Error: "no archive entry with id " + params.ID}, nil
			}
			return ToolOutput{Content: sanitizeMarkdown(entry.Content), Success: true}, nil
		},
	}
}
