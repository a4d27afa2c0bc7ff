// Package ingest implements the knowledge-base ingester of spec.md §4.M:
// walk a file tree, extract and sanitize text, chunk it, batch-embed the
// chunks via an external provider, and persist each chunk as a Document
// node. Grounded on original_source/src/membria/kb_ingest.py's
// ingest_documents pipeline (file walk, chunk_text, batched embed calls,
// graph persistence) and on the teacher's internal/embedding package for
// the embedding step itself.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/embedding"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/store"
)

// Options configures one ingest_documents run (§4.M).
type Options struct {
	Root      string
	DocType   string
	Tags      []string
	ChunkSize int
	Overlap   int
	Strict    bool
}

// Result is ingest_documents' return value (§4.M).
type Result struct {
	Files   int
	Chunks  int
	Skipped int
}

// Ingester walks, extracts, sanitizes, chunks, embeds and persists
// knowledge-base documents.
type Ingester struct {
	gs     *store.GraphStore
	engine embedding.Engine
	cfg    *config.Store
	now    func() int64
}

// New constructs an Ingester. now defaults to time.Now().Unix() when nil.
func New(gs *store.GraphStore, engine embedding.Engine, cfg *config.Store, now func() int64) *Ingester {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Ingester{gs: gs, engine: engine, cfg: cfg, now: now}
}

type pendingChunk struct {
	path  string
	text  string
	index int
	total int
}

// IngestDocuments implements §4.M's ingest_documents operation.
func (in *Ingester) IngestDocuments(ctx context.Context, opts Options) (Result, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "IngestDocuments")
	defer timer.Stop()
	log := logging.Get(logging.CategoryIngest)

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = in.cfg.GetInt("ingest.chunk_size", 800)
	}
	overlap := opts.Overlap
	if overlap == 0 {
		overlap = in.cfg.GetInt("ingest.chunk_overlap", 100)
	}
	batchSize := in.cfg.GetInt("ingest.embed_batch_size", 96)

	files, err := in.walk(opts.Root)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, nil
	}

	var pending []pendingChunk
	skipped := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		raw, err := Extract(path)
		if err != nil {
			skipped++
			if opts.Strict {
				return Result{}, fmt.Errorf("extract %s: %w", path, err)
			}
			log.Warn("extract failed for %s: %v", path, err)
			continue
		}
		clean := Sanitize(raw)
		chunks := ChunkText(clean, chunkSize, overlap)
		for idx, c := range chunks {
			pending = append(pending, pendingChunk{path: path, text: c, index: idx, total: len(chunks)})
		}
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.text
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := in.engine.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return Result{}, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		embeddings = append(embeddings, batch...)
	}

	touchedPaths := make(map[string]bool)
	now := in.now()
	for i, p := range pending {
		if !touchedPaths[p.path] {
			if err := in.gs.DeleteDocumentsByPath(p.path); err != nil {
				log.Warn("failed to clear stale chunks for %s: %v", p.path, err)
			}
			touchedPaths[p.path] = true
		}
		doc := &domain.Document{
			ID:         makeDocID(p.path, p.index),
			FilePath:   p.path,
			Content:    p.text,
			DocType:    opts.DocType,
			Embedding:  embeddings[i],
			ChunkIndex: p.index,
			ChunkTotal: p.total,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := in.gs.PutDocument(doc); err != nil {
			return Result{}, fmt.Errorf("persist chunk %s: %w", doc.ID, err)
		}
	}

	return Result{Files: len(files), Chunks: len(pending), Skipped: skipped}, nil
}

func (in *Ingester) walk(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if extensionAllowed(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if extensionAllowed(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func extensionAllowed(path string) bool {
	return DefaultExtensions[strings.ToLower(filepath.Ext(path))]
}

func makeDocID(path string, chunkIdx int) string {
	sum := sha1.Sum([]byte(path))
	return fmt.Sprintf("doc_%s_%d", hex.EncodeToString(sum[:])[:10], chunkIdx)
}

// Watch re-runs IngestDocuments for root whenever its tree changes,
// until ctx is cancelled. Used by the daemon's supervisor to keep a
// knowledge-base directory continuously indexed.
func (in *Ingester) Watch(ctx context.Context, opts Options) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, opts.Root); err != nil {
		return err
	}

	log := logging.Get(logging.CategoryIngest)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if _, err := in.IngestDocuments(ctx, opts); err != nil {
				log.Warn("re-ingest after %s triggered by %s failed: %v", opts.Root, event.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("fs watcher error: %v", err)
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
