package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"mailagent/core/port/out"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), zerolog.Nop())
}

func vec(vals ...float32) []float32 { return vals }

func TestReplaceAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []out.Chunk{
		{ID: "a#0", Text: "价格信息", Source: "a.txt", Vector: vec(1, 0, 0)},
		{ID: "a#1", Text: "功能介绍", Source: "a.txt", Vector: vec(0, 1, 0)},
		{ID: "b#0", Text: "联系方式", Source: "b.txt", Vector: vec(0, 0, 1)},
	}
	if err := s.Replace(ctx, 3, chunks); err != nil {
		t.Fatal(err)
	}

	if !s.Exists(3) {
		t.Fatal("store should exist after replace")
	}
	if n, err := s.Count(3); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	got, err := s.Search(ctx, 3, vec(0.9, 0.1, 0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != "a#0" {
		t.Errorf("top result = %q, want a#0", got[0].ID)
	}
	if got[0].Score <= got[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestDimensionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, 3, []out.Chunk{{ID: "x", Source: "x.txt", Vector: vec(1, 0, 0)}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Replace(ctx, 4, []out.Chunk{{ID: "y", Source: "y.txt", Vector: vec(1, 0, 0, 0)}}); err != nil {
		t.Fatal(err)
	}

	// rebuilding dimension 4 leaves dimension 3 on disk
	if !s.Exists(3) || !s.Exists(4) {
		t.Fatal("both dimension stores should exist")
	}
	if _, err := os.Stat(filepath.Join(s.base, "db_3")); err != nil {
		t.Errorf("db_3 directory missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.base, "db_4")); err != nil {
		t.Errorf("db_4 directory missing: %v", err)
	}

	got, err := s.Search(ctx, 3, vec(1, 0, 0), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("dimension 3 search returned %v", got)
	}
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, 3, []out.Chunk{{ID: "x", Source: "x.txt", Vector: vec(1, 0, 0)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(ctx, 3, vec(1, 0), 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestAddReplacesSameSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, 3, []out.Chunk{
		{ID: "a#0", Source: "a.txt", Vector: vec(1, 0, 0)},
		{ID: "b#0", Source: "b.txt", Vector: vec(0, 1, 0)},
	}); err != nil {
		t.Fatal(err)
	}

	// re-index a.txt with two chunks
	if err := s.Add(ctx, 3, []out.Chunk{
		{ID: "a#0", Source: "a.txt", Vector: vec(0, 0, 1)},
		{ID: "a#1", Source: "a.txt", Vector: vec(0, 0, 1)},
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(3)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3 (b.txt kept, a.txt replaced)", n)
	}
}

func TestReplaceManySegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := make([]out.Chunk, segmentSize+10)
	for i := range chunks {
		chunks[i] = out.Chunk{ID: string(rune('a' + i%26)), Source: "big.txt", Vector: vec(1, 0)}
	}
	if err := s.Replace(ctx, 2, chunks); err != nil {
		t.Fatal(err)
	}
	n, err := s.Count(2)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(chunks) {
		t.Errorf("Count = %d, want %d", n, len(chunks))
	}
	got, err := s.Search(ctx, 2, vec(1, 0), len(chunks)+5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(chunks) {
		t.Errorf("Search returned %d, want %d", len(got), len(chunks))
	}
}
