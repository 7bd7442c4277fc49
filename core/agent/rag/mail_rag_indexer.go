package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

const embedBatchSize = 16

// Document describes one knowledge-base file.
type Document struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// Indexer builds dimension-keyed vector stores from a directory of text
// files.
type Indexer struct {
	dir      string
	chunker  *Chunker
	embedder *Embedder
	store    out.VectorStorePort
	log      zerolog.Logger
}

// NewIndexer creates an indexer over the knowledge directory.
func NewIndexer(dir string, embedder *Embedder, store out.VectorStorePort, log zerolog.Logger) *Indexer {
	return &Indexer{
		dir:      dir,
		chunker:  NewChunker(),
		embedder: embedder,
		store:    store,
		log:      log.With().Str("component", "rag_indexer").Logger(),
	}
}

// ListDocuments returns the indexable files under the knowledge directory.
func (ix *Indexer) ListDocuments() ([]Document, error) {
	entries, err := os.ReadDir(ix.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Document{}, nil
		}
		return nil, apperr.PersistenceError("list knowledge documents", err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !indexableFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Document{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// ReadDocument returns the decoded content of one knowledge file.
func (ix *Indexer) ReadDocument(name string) (string, error) {
	path, err := ix.safePath(name)
	if err != nil {
		return "", err
	}
	text, err := readTextFile(path)
	if err != nil {
		return "", apperr.PersistenceError("read knowledge document", err)
	}
	return text, nil
}

// DeleteDocument removes one knowledge file. The index is not touched; the
// caller decides when to rebuild.
func (ix *Indexer) DeleteDocument(name string) error {
	path, err := ix.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return apperr.PersistenceError("delete knowledge document", err)
	}
	return nil
}

// Rebuild reindexes every document into the store for the model's dimension.
// Returns the dimension and the number of chunks written.
func (ix *Indexer) Rebuild(ctx context.Context, sel out.ModelSelection) (int, int, error) {
	docs, err := ix.ListDocuments()
	if err != nil {
		return 0, 0, err
	}
	if len(docs) == 0 {
		return 0, 0, apperr.NotFound("knowledge documents")
	}

	dim, err := ix.embedder.Dimension(ctx, sel)
	if err != nil {
		return 0, 0, err
	}

	var chunks []out.Chunk
	for _, doc := range docs {
		docChunks, err := ix.chunkFile(doc.Name)
		if err != nil {
			ix.log.Warn().Err(err).Str("file", doc.Name).Msg("skipping unreadable document")
			continue
		}
		chunks = append(chunks, docChunks...)
	}
	if len(chunks) == 0 {
		return dim, 0, apperr.NotFound("indexable content")
	}

	if err := ix.embedChunks(ctx, sel, chunks); err != nil {
		return dim, 0, err
	}
	if err := ix.store.Replace(ctx, dim, chunks); err != nil {
		return dim, 0, err
	}

	ix.log.Info().Int("dimension", dim).Int("chunks", len(chunks)).Msg("index rebuilt")
	return dim, len(chunks), nil
}

// IndexFile reindexes one document, appending its chunks to the store.
func (ix *Indexer) IndexFile(ctx context.Context, sel out.ModelSelection, name string) (int, int, error) {
	dim, err := ix.embedder.Dimension(ctx, sel)
	if err != nil {
		return 0, 0, err
	}
	chunks, err := ix.chunkFile(name)
	if err != nil {
		return dim, 0, err
	}
	if len(chunks) == 0 {
		return dim, 0, nil
	}
	if err := ix.embedChunks(ctx, sel, chunks); err != nil {
		return dim, 0, err
	}
	if err := ix.store.Add(ctx, dim, chunks); err != nil {
		return dim, 0, err
	}
	return dim, len(chunks), nil
}

func (ix *Indexer) chunkFile(name string) ([]out.Chunk, error) {
	path, err := ix.safePath(name)
	if err != nil {
		return nil, err
	}
	text, err := readTextFile(path)
	if err != nil {
		return nil, err
	}

	pieces := ix.chunker.Split(text)
	chunks := make([]out.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, out.Chunk{
			ID:     fmt.Sprintf("%s#%d", name, i),
			Text:   p,
			Source: name,
		})
	}
	return chunks, nil
}

// embedChunks fills in vectors batch by batch. A failed batch is retried
// once sequentially, one text per call, before giving up.
func (ix *Indexer) embedChunks(ctx context.Context, sel out.ModelSelection, chunks []out.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := ix.embedder.EmbedTexts(ctx, sel, texts)
		if err == nil && len(vecs) == len(batch) {
			for i := range batch {
				batch[i].Vector = vecs[i]
			}
			continue
		}

		ix.log.Warn().Err(err).Int("batch_start", start).Msg("batch embed failed, retrying sequentially")
		for i := range batch {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			single, err := ix.embedder.EmbedTexts(ctx, sel, []string{batch[i].Text})
			if err != nil || len(single) == 0 {
				return apperr.ExternalError("embedding", err).WithDetail("chunk", batch[i].ID)
			}
			batch[i].Vector = single[0]
		}
	}
	return nil
}

func (ix *Indexer) safePath(name string) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return "", apperr.InvalidInput("filename", "must be a bare file name")
	}
	return filepath.Join(ix.dir, name), nil
}

func indexableFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// readTextFile reads a file as UTF-8, falling back to GB18030 then GBK for
// legacy Chinese exports.
func readTextFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	for _, enc := range []transform.Transformer{
		simplifiedchinese.GB18030.NewDecoder(),
		simplifiedchinese.GBK.NewDecoder(),
	} {
		decoded, _, err := transform.Bytes(enc, raw)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return string(raw), nil
}
