package core

import (
	"strconv"
	"strings"
	"sync"
)

// FactCategory is a FactSheetEntry's kind, also its render/eviction
// priority order (highest first): correction, blocker, decision, finding,
// file_content, architecture, tool_result, environment.
type FactCategory string

const (
	CategoryCorrection  FactCategory = "correction"
	CategoryBlocker     FactCategory = "blocker"
	CategoryDecision    FactCategory = "decision"
	CategoryFinding     FactCategory = "finding"
	CategoryFileContent FactCategory = "file_content"
	CategoryArchitecture FactCategory = "architecture"
	CategoryToolResult  FactCategory = "tool_result"
	CategoryEnvironment FactCategory = "environment"
)

// categoryPriority orders categories for both render() and eviction;
// lower index sorts first / is protected longer.
var categoryPriority = []FactCategory{
	CategoryCorrection, CategoryBlocker, CategoryDecision, CategoryFinding,
	CategoryFileContent, CategoryArchitecture, CategoryToolResult, CategoryEnvironment,
}

func categoryRank(c FactCategory) int {
	for i, p := range categoryPriority {
		if p == c {
			return i
		}
	}
	return len(categoryPriority)
}

// protectedCategories are never evicted under pressure.
var protectedCategories = map[FactCategory]bool{
	CategoryCorrection: true,
	CategoryBlocker:    true,
}

// FactSheetEntry is one hot-memory fact about the current run.
type FactSheetEntry struct {
	ID                string
	Iteration         int
	Category          FactCategory
	Fact              string
	Confidence        float64
	Source            string
	LastUpdated       int64
	ConfirmationCount int
	Supersedes        string
}

// FactSheet is the categorized, bounded, hot-memory half of the context/
// memory subsystem. Pure data structure — no I/O, no locking beyond its
// own map, safe to call from middleware running inside tool dispatch
// goroutines.
type FactSheet struct {
	MinConfidence float64
	MaxEntries    int
	MaxTokens     int

	mu      sync.Mutex
	entries map[string]*FactSheetEntry
	seq     int
}

// NewFactSheet returns a FactSheet with spec defaults: minConfidence 0.5,
// maxEntries 60, maxTokens 5000 (~4 chars/token).
func NewFactSheet() *FactSheet {
	return &FactSheet{MinConfidence: 0.5, MaxEntries: 60, MaxTokens: 5000, entries: make(map[string]*FactSheetEntry)}
}

// AddResult reports whether Add inserted a fresh entry or merged into an
// existing one.
type AddResult struct {
	Merged bool
	ID     string
}

// Add inserts or merges a fact per the module's merge/eviction rules.
// Facts below MinConfidence are silently dropped. If supersedes names an
// existing id, that entry is deleted first. A similar fact in the same
// category (path match for file_content, ≥60% word overlap otherwise) is
// merged rather than duplicated: the longer text wins, confidence becomes
// the max of both, confirmation count increments, iteration updates.
func (f *FactSheet) Add(category FactCategory, fact string, confidence float64, source string, iteration int, supersedes string) AddResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	if confidence < f.MinConfidence {
		return AddResult{}
	}
	if supersedes != "" {
		delete(f.entries, supersedes)
	}

	for id, existing := range f.entries {
		if existing.Category != category {
			continue
		}
		if similarFact(existing, category, fact) {
			if len(fact) > len(existing.Fact) {
				existing.Fact = fact
			}
			if confidence > existing.Confidence {
				existing.Confidence = confidence
			}
			existing.ConfirmationCount++
			existing.Iteration = iteration
			existing.LastUpdated = currentUnixOrZero()
			f.enforceLimits()
			return AddResult{Merged: true, ID: id}
		}
	}

	f.seq++
	id := "fact-" + strconv.Itoa(f.seq)
	f.entries[id] = &FactSheetEntry{
		ID: id, Iteration: iteration, Category: category, Fact: fact,
		Confidence: confidence, Source: source, LastUpdated: currentUnixOrZero(),
		ConfirmationCount: 1, Supersedes: supersedes,
	}
	f.enforceLimits()
	return AddResult{ID: id}
}

func currentUnixOrZero() int64 {
	// NowUnix relies on time.Now, fine outside of deterministic replay paths;
	// callers that need determinism stamp LastUpdated themselves beforehand.
	return NowUnix()
}

// similarFact implements the dedup rule: file_content facts match by
// extracted path (the fact text is expected to lead with the path), all
// other categories match by ≥60% word overlap (Jaccard over lowercase
// token sets).
func similarFact(existing *FactSheetEntry, category FactCategory, newFact string) bool {
	if category == CategoryFileContent {
		return factPath(existing.Fact) != "" && factPath(existing.Fact) == factPath(newFact)
	}
	return wordOverlap(existing.Fact, newFact) >= 0.60
}

// factPath extracts a leading filesystem-looking path token from a
// file_content fact, e.g. "internal/auth/token.go: validates JWT..." ->
// "internal/auth/token.go".
func factPath(fact string) string {
	if idx := strings.IndexByte(fact, ':'); idx > 0 {
		candidate := strings.TrimSpace(fact[:idx])
		if strings.Contains(candidate, "/") || strings.Contains(candidate, ".") {
			return candidate
		}
	}
	return ""
}

func wordOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// enforceLimits drops entries above MaxEntries, then above the
// character budget implied by MaxTokens (~4 chars/token), by repeatedly
// evicting the worst non-protected candidate: lowest confidence, then
// fewest confirmations, then oldest iteration. Caller holds f.mu.
func (f *FactSheet) enforceLimits() {
	for len(f.entries) > f.MaxEntries {
		if !f.evictWorst() {
			break
		}
	}
	for f.totalChars() > f.MaxTokens*4 {
		if !f.evictWorst() {
			break
		}
	}
}

func (f *FactSheet) totalChars() int {
	total := 0
	for _, e := range f.entries {
		total += len(e.Fact)
	}
	return total
}

func (f *FactSheet) evictWorst() bool {
	var worstID string
	var worst *FactSheetEntry
	for id, e := range f.entries {
		if protectedCategories[e.Category] {
			continue
		}
		if worst == nil || isWorse(e, worst) {
			worst = e
			worstID = id
		}
	}
	if worst == nil {
		return false
	}
	delete(f.entries, worstID)
	return true
}

// isWorse reports whether candidate should be evicted before current,
// per the worst-candidate rule: lowest confidence first, then fewest
// confirmations, then oldest iteration.
func isWorse(candidate, current *FactSheetEntry) bool {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence < current.Confidence
	}
	if candidate.ConfirmationCount != current.ConfirmationCount {
		return candidate.ConfirmationCount < current.ConfirmationCount
	}
	return candidate.Iteration < current.Iteration
}

// Render produces compact markdown grouped by category priority, with an
// inline low-confidence annotation on facts at or below 0.7.
func (f *FactSheet) Render() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return ""
	}

	byCategory := make(map[FactCategory][]*FactSheetEntry)
	for _, e := range f.entries {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	var b strings.Builder
	b.WriteString("## Fact sheet\n")
	for _, cat := range categoryPriority {
		entries := byCategory[cat]
		if len(entries) == 0 {
			continue
		}
		b.WriteString("\n### " + string(cat) + "\n")
		for _, e := range entries {
			b.WriteString("- " + sanitizeMarkdown(e.Fact))
			if e.Confidence <= 0.7 {
				b.WriteString(" (confidence: " + strconv.FormatFloat(e.Confidence, 'f', 2, 64) + ")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Len returns the current entry count, mainly for tests and Budget
// middleware accounting.
func (f *FactSheet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
