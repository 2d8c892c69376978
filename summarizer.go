package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ExtractedFact is one structured fact a SmartSummarizer's small-tier pass
// pulled out of a message range, shaped for a direct hand-off into
// FactSheet.Add.
type ExtractedFact struct {
	Category   FactCategory `json:"category"`
	Fact       string       `json:"fact"`
	Confidence float64      `json:"confidence"`
	Source     string       `json:"source"`
}

const summarizeExtractPrompt = `You extract structured facts worth remembering from a slice of an agent's tool-call transcript.

Rules:
- Only extract facts clearly supported by the transcript (file paths touched, decisions made, errors hit, blockers found).
- Categorize each fact as one of: correction, blocker, decision, finding, file_content, architecture, tool_result, environment.
- Each fact should be a single concise statement with a confidence in [0,1].
- Return an empty array if nothing is worth keeping.

Return ONLY a JSON array: [{"category":"finding","fact":"...","confidence":0.8,"source":"tool:fs_read"}]`

// summarizeRange is one queued (start, end) iteration span awaiting
// extraction.
type summarizeRange struct {
	start, end int
	messages   []Message
}

// SmartSummarizer periodically snapshots a run's message history and asks
// a small-tier model to extract structured facts from it, handing results
// to a callback (typically FactSheet.Add) without blocking the caller.
// Generalizes the teacher's extractAndPersistFacts from a per-turn,
// synchronous background goroutine into an explicit FIFO queue that
// guarantees no iteration range is summarized twice.
type SmartSummarizer struct {
	Interval int // summarize every N iterations, default 5
	Provider Provider
	OnFacts  func(facts []ExtractedFact)
	Logger   *slog.Logger

	mu          sync.Mutex
	queue       []summarizeRange
	processing  bool
	summarized  map[string]bool
	lastTrigger int
}

// NewSmartSummarizer returns a summarizer with the spec default interval
// of 5 iterations.
func NewSmartSummarizer(provider Provider, onFacts func([]ExtractedFact)) *SmartSummarizer {
	return &SmartSummarizer{Interval: 5, Provider: provider, OnFacts: onFacts, summarized: make(map[string]bool)}
}

// MaybeTrigger checks whether currentIteration crosses an Interval
// boundary since the last trigger and, if so, queues the (start, end)
// range for extraction and kicks off processing if idle. Returns
// immediately; extraction runs in the background.
func (s *SmartSummarizer) MaybeTrigger(ctx context.Context, currentIteration int, history []Message) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5
	}

	s.mu.Lock()
	if currentIteration-s.lastTrigger < interval {
		s.mu.Unlock()
		return
	}
	start, end := s.lastTrigger, currentIteration
	s.lastTrigger = currentIteration
	key := rangeKey(start, end)
	if s.summarized[key] {
		s.mu.Unlock()
		return
	}
	s.summarized[key] = true

	snapshot := make([]Message, len(history))
	copy(snapshot, history)
	s.queue = append(s.queue, summarizeRange{start: start, end: end, messages: snapshot})
	alreadyProcessing := s.processing
	s.processing = true
	s.mu.Unlock()

	if !alreadyProcessing {
		go s.drain(ctx)
	}
}

func rangeKey(start, end int) string {
	return fmt.Sprintf("%d:%d", start, end)
}

// drain processes the FIFO queue until empty, one range at a time, so
// concurrent triggers never run two extraction calls against the same
// provider simultaneously.
func (s *SmartSummarizer) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		facts := s.extract(ctx, next)
		if len(facts) > 0 && s.OnFacts != nil {
			s.OnFacts(facts)
		}
	}
}

func (s *SmartSummarizer) extract(ctx context.Context, r summarizeRange) []ExtractedFact {
	if s.Provider == nil {
		return nil
	}
	var transcript strings.Builder
	for _, m := range r.messages {
		if m.Iteration < r.start || m.Iteration > r.end {
			continue
		}
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}
	if transcript.Len() == 0 {
		return nil
	}

	resp, err := s.Provider.Complete(ctx, ChatRequest{
		Messages: []Message{
			SystemMessage(summarizeExtractPrompt, 0),
			UserMessage(transcript.String(), 0),
		},
	})
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("summarizer extraction failed", "error", err)
		}
		return nil
	}
	return parseExtractedFactList(resp.Content)
}

func parseExtractedFactList(response string) []ExtractedFact {
	content := strings.TrimSpace(response)
	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(content), &facts); err == nil {
		return facts
	}
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		_ = json.Unmarshal([]byte(content[start:end+1]), &facts)
	}
	return facts
}
