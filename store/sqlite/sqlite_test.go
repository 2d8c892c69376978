package sqlite

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	oasis "github.com/oasis-run/core"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestConfig(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	val, _ := s.GetConfig(ctx, "missing")
	if val != "" {
		t.Errorf("missing key should return empty, got %q", val)
	}

	s.SetConfig(ctx, "k", "v1")
	val, _ = s.GetConfig(ctx, "k")
	if val != "v1" {
		t.Errorf("expected v1, got %q", val)
	}

	s.SetConfig(ctx, "k", "v2")
	val, _ = s.GetConfig(ctx, "k")
	if val != "v2" {
		t.Errorf("expected v2, got %q", val)
	}
}

func TestStoreDocument(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := oasis.Document{
		ID: oasis.NewID(), Title: "Test", Source: "test",
		Content: "full content", CreatedAt: oasis.NowUnix(),
	}
	chunks := []oasis.Chunk{
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "chunk 1", ChunkIndex: 0},
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "chunk 2", ChunkIndex: 1},
	}

	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	// Verify via raw query
	var count int
	s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", doc.ID).Scan(&count)
	if count != 2 {
		t.Errorf("expected 2 chunks, got %d", count)
	}

	docs, err := s.ListDocuments(ctx, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("expected 1 document %q, got %+v", doc.ID, docs)
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	docs, _ = s.ListDocuments(ctx, 0)
	if len(docs) != 0 {
		t.Fatalf("expected 0 documents after delete, got %d", len(docs))
	}
}

func TestSearchChunks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := oasis.Document{ID: oasis.NewID(), Title: "Test", Source: "t", Content: "c", CreatedAt: 1}
	chunks := []oasis.Chunk{
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "rust", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "go", ChunkIndex: 1, Embedding: []float32{0, 1}},
	}
	s.StoreDocument(ctx, doc, chunks)

	results, err := s.SearchChunks(ctx, []float32{0.8, 0.2}, 1)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 1 || results[0].Content != "rust" {
		t.Errorf("expected top result 'rust', got %v", results)
	}
}

func TestSearchChunks_ExcludeDocument(t *testing.T) {
	ctx := context.Background()
	s := New(":memory:")
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Store two documents with chunks.
	doc1 := oasis.Document{ID: "d1", Title: "doc1", CreatedAt: oasis.NowUnix()}
	doc2 := oasis.Document{ID: "d2", Title: "doc2", CreatedAt: oasis.NowUnix()}
	emb := []float32{0.1, 0.2, 0.3}
	c1 := oasis.Chunk{ID: "c1", DocumentID: "d1", Content: "hello", Embedding: emb}
	c2 := oasis.Chunk{ID: "c2", DocumentID: "d2", Content: "world", Embedding: emb}

	if err := s.StoreDocument(ctx, doc1, []oasis.Chunk{c1}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreDocument(ctx, doc2, []oasis.Chunk{c2}); err != nil {
		t.Fatal(err)
	}

	// Search excluding d1 — should only find c2.
	results, err := s.SearchChunks(ctx, emb, 10, oasis.ByExcludeDocument("d1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	if results[0].ID != "c2" {
		t.Errorf("got chunk %q, want c2", results[0].ID)
	}
}

func TestSearchChunksKeyword(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := oasis.Document{ID: oasis.NewID(), Title: "Test", Source: "t", Content: "c", CreatedAt: 1}
	chunks := []oasis.Chunk{
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "the quick brown fox", ChunkIndex: 0},
		{ID: oasis.NewID(), DocumentID: doc.ID, Content: "a lazy dog sleeps", ChunkIndex: 1},
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchChunksKeyword(ctx, "fox", 5)
	if err != nil {
		t.Fatalf("SearchChunksKeyword: %v", err)
	}
	if len(results) != 1 || results[0].Content != "the quick brown fox" {
		t.Errorf("expected the fox chunk, got %v", results)
	}
}

func TestConcurrentWrites_NoBusyError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := oasis.Document{
				ID:        oasis.NewID(),
				Title:     fmt.Sprintf("doc %d", i),
				CreatedAt: oasis.NowUnix(),
			}
			chunk := oasis.Chunk{ID: oasis.NewID(), DocumentID: doc.ID, Content: fmt.Sprintf("chunk %d", i)}
			errs <- s.StoreDocument(ctx, doc, []oasis.Chunk{chunk})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}

	docs, err := s.ListDocuments(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != n {
		t.Errorf("expected %d documents stored, got %d", n, len(docs))
	}
}

func TestGraphStore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Store a document with chunks first.
	doc := oasis.Document{ID: "d1", Title: "Test", Source: "test.txt", Content: "test", CreatedAt: 1}
	chunks := []oasis.Chunk{
		{ID: "c1", DocumentID: "d1", Content: "chunk one", ChunkIndex: 0},
		{ID: "c2", DocumentID: "d1", Content: "chunk two", ChunkIndex: 1},
		{ID: "c3", DocumentID: "d1", Content: "chunk three", ChunkIndex: 2},
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	// Store edges.
	edges := []oasis.ChunkEdge{
		{ID: "e1", SourceID: "c1", TargetID: "c2", Relation: oasis.RelReferences, Weight: 0.9},
		{ID: "e2", SourceID: "c1", TargetID: "c3", Relation: oasis.RelElaborates, Weight: 0.7},
		{ID: "e3", SourceID: "c2", TargetID: "c3", Relation: oasis.RelSequence, Weight: 0.5},
	}
	if err := s.StoreEdges(ctx, edges); err != nil {
		t.Fatalf("StoreEdges: %v", err)
	}

	// GetEdges (outgoing from c1).
	got, err := s.GetEdges(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("GetEdges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetEdges(c1): got %d edges, want 2", len(got))
	}

	// GetIncomingEdges (incoming to c3).
	got, err = s.GetIncomingEdges(ctx, []string{"c3"})
	if err != nil {
		t.Fatalf("GetIncomingEdges: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetIncomingEdges(c3): got %d edges, want 2", len(got))
	}

	// Delete document should cascade delete edges.
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	got, err = s.GetEdges(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("GetEdges after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetEdges after delete: got %d edges, want 0", len(got))
	}
}

func TestGraphStorePruneOrphan(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Insert orphan edges (no corresponding chunks).
	edges := []oasis.ChunkEdge{
		{ID: "e1", SourceID: "orphan1", TargetID: "orphan2", Relation: oasis.RelReferences, Weight: 0.9},
	}
	if err := s.StoreEdges(ctx, edges); err != nil {
		t.Fatalf("StoreEdges: %v", err)
	}

	pruned, err := s.PruneOrphanEdges(ctx)
	if err != nil {
		t.Fatalf("PruneOrphanEdges: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("PruneOrphanEdges: pruned %d, want 1", pruned)
	}
}

func TestStoreEdges_Description(t *testing.T) {
	ctx := context.Background()
	s := New(":memory:")
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Store a document + chunk so edges have valid references.
	doc := oasis.Document{ID: "d1", Title: "test", CreatedAt: oasis.NowUnix()}
	chunk := oasis.Chunk{ID: "c1", DocumentID: "d1", Content: "hello", Embedding: []float32{0.1}}
	chunk2 := oasis.Chunk{ID: "c2", DocumentID: "d1", Content: "world", Embedding: []float32{0.2}}
	if err := s.StoreDocument(ctx, doc, []oasis.Chunk{chunk, chunk2}); err != nil {
		t.Fatal(err)
	}

	edges := []oasis.ChunkEdge{
		{ID: "e1", SourceID: "c1", TargetID: "c2", Relation: oasis.RelElaborates, Weight: 0.8, Description: "expands on greeting"},
		{ID: "e2", SourceID: "c2", TargetID: "c1", Relation: oasis.RelReferences, Weight: 0.7},
	}
	if err := s.StoreEdges(ctx, edges); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEdges(ctx, []string{"c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Description != "expands on greeting" {
		t.Errorf("Description = %q, want %q", got[0].Description, "expands on greeting")
	}

	// Edge without description should have empty string.
	got2, err := s.GetEdges(ctx, []string{"c2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got2) != 1 {
		t.Fatalf("len = %d, want 1", len(got2))
	}
	if got2[0].Description != "" {
		t.Errorf("Description = %q, want empty", got2[0].Description)
	}
}

func TestCosineSimilarity(t *testing.T) {
	// Identical vectors = 1.0
	s := cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	if math.Abs(float64(s)-1.0) > 1e-6 {
		t.Errorf("identical vectors: expected ~1.0, got %f", s)
	}

	// Orthogonal vectors = 0.0
	s = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(float64(s)) > 1e-6 {
		t.Errorf("orthogonal vectors: expected ~0.0, got %f", s)
	}

	// Opposite vectors = -1.0
	s = cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if math.Abs(float64(s)+1.0) > 1e-6 {
		t.Errorf("opposite vectors: expected ~-1.0, got %f", s)
	}
}
