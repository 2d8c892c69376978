package ingest

import "testing"

func TestChunkTextEmpty(t *testing.T) {
	chunks := NewRecursiveChunker().Chunk("")
	if len(chunks) != 0 {
		t.Error("expected empty")
	}
}

func TestChunkTextShort(t *testing.T) {
	chunks := NewRecursiveChunker().Chunk("Hello, world!")
	if len(chunks) != 1 || chunks[0] != "Hello, world!" {
		t.Error("expected single chunk")
	}
}

func TestChunkTextRespectMax(t *testing.T) {
	maxChars := 100
	text := ""
	for i := 0; i < 50; i++ {
		text += "This is a test. "
	}
	chunks := chunkText(text, maxChars, 20)
	if len(chunks) <= 1 {
		t.Error("expected multiple chunks")
	}
	for _, c := range chunks {
		if len(c) > maxChars {
			t.Errorf("chunk length %d exceeds max %d", len(c), maxChars)
		}
	}
}

func TestChunkTextParagraphSplitting(t *testing.T) {
	text := "First paragraph with some content.\n\nSecond paragraph with other content.\n\nThird paragraph with more."
	chunks := chunkText(text, 100, 10)
	if len(chunks) == 0 {
		t.Error("expected chunks")
	}
	for _, c := range chunks {
		if c == "" {
			t.Error("empty chunk")
		}
	}
}

func TestChunkTextWordSplitting(t *testing.T) {
	maxChars := 50
	text := ""
	for i := 0; i < 100; i++ {
		text += "word "
	}
	chunks := chunkText(text, maxChars, 10)
	if len(chunks) <= 1 {
		t.Error("expected multiple chunks")
	}
	for _, c := range chunks {
		if len(c) > maxChars {
			t.Errorf("chunk length %d exceeds max %d", len(c), maxChars)
		}
	}
}
