package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Yates-Labs/furrow/internal/source"
	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk IDs so re-indexing a source
// replaces its chunks instead of duplicating them.
var chunkNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8e-9a57-1f4f2d6c8b10")

// IndexReport summarizes an indexing run.
type IndexReport struct {
	Documents int // Documents chunked and stored
	Skipped   int // Documents skipped because they already had chunks
	Chunks    int // Chunks written
	Embedded  int // Chunks written with an embedding
}

// ChunkID returns the stable ID of the index-th chunk of a source.
func ChunkID(sourceID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sourceID+"#"+strconv.Itoa(chunkIndex))).String()
}

// ChunkDocument splits a document into chunks. Chunk indexes run across
// pages so they stay unique within the source.
func ChunkDocument(doc source.Document, chunkSize int) []KnowledgeChunk {
	var chunks []KnowledgeChunk
	for _, page := range doc.Pages {
		var pageNumber *int
		if page.Number > 0 {
			n := page.Number
			pageNumber = &n
		}
		for _, text := range ChunkText(page.Text, chunkSize) {
			idx := len(chunks)
			chunks = append(chunks, KnowledgeChunk{
				ID:          ChunkID(doc.SourceID, idx),
				SourceID:    doc.SourceID,
				SourceTitle: doc.Title,
				PageNumber:  pageNumber,
				ChunkIndex:  idx,
				Text:        text,
			})
		}
	}
	return chunks
}

// IndexDocuments chunks documents, embeds the chunks in batches, and stores them.
// With ForceReindex, existing chunks of the given sources are deleted first;
// with SkipExisting, sources that already have chunks are left alone.
func IndexDocuments(
	ctx context.Context,
	docs []source.Document,
	embedder Embedder,
	store KnowledgeStore,
	opts IndexOptions,
) (IndexReport, error) {
	var report IndexReport
	if len(docs) == 0 {
		return report, nil
	}

	if embedder == nil && !opts.DeferEmbedding {
		return report, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return report, fmt.Errorf("knowledge store cannot be nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultIndexOptions().ChunkSize
	}

	sourceIDs := make([]string, len(docs))
	for i, doc := range docs {
		sourceIDs[i] = doc.SourceID
	}

	if opts.ForceReindex {
		if err := store.DeleteSources(ctx, sourceIDs); err != nil {
			return report, fmt.Errorf("failed to delete existing sources: %w", err)
		}
	}

	toIndex := docs
	if opts.SkipExisting && !opts.ForceReindex {
		toIndex = filterNewDocuments(ctx, docs, sourceIDs, store)
		report.Skipped = len(docs) - len(toIndex)
	}

	var chunks []KnowledgeChunk
	for _, doc := range toIndex {
		docChunks := ChunkDocument(doc, opts.ChunkSize)
		if len(docChunks) == 0 {
			slog.Debug("document has no text, skipping", "component", "rag", "source_id", doc.SourceID)
			continue
		}
		chunks = append(chunks, docChunks...)
		report.Documents++
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += opts.BatchSize {
		batchEnd := min(batchStart+opts.BatchSize, len(chunks))
		batch := chunks[batchStart:batchEnd]

		if !opts.DeferEmbedding {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			records, err := embedder.Embed(ctx, texts)
			if err != nil {
				return report, fmt.Errorf("failed to generate embeddings for batch starting at %d: %w", batchStart, err)
			}
			for _, rec := range records {
				if rec.Index < 0 || rec.Index >= len(batch) {
					return report, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, rec.Index)
				}
				batch[rec.Index].Embedding = rec.Embedding
			}
			for _, c := range batch {
				if c.HasEmbedding() {
					report.Embedded++
				}
			}
		}

		if err := store.Insert(ctx, batch); err != nil {
			return report, fmt.Errorf("failed to insert batch starting at %d: %w", batchStart, err)
		}
		report.Chunks += len(batch)
	}

	slog.Info("indexing complete", "component", "rag",
		"documents", report.Documents, "skipped", report.Skipped,
		"chunks", report.Chunks, "embedded", report.Embedded)
	return report, nil
}

// filterNewDocuments drops documents whose source already has chunks.
// If the lookup fails every document is kept; Insert replaces by ID.
func filterNewDocuments(ctx context.Context, docs []source.Document, sourceIDs []string, store KnowledgeStore) []source.Document {
	existing, err := store.ExistingSources(ctx, sourceIDs)
	if err != nil {
		slog.Warn("could not check existing sources, indexing all", "component", "rag", "error", err)
		return docs
	}

	fresh := make([]source.Document, 0, len(docs))
	for _, doc := range docs {
		if !existing[doc.SourceID] {
			fresh = append(fresh, doc)
		}
	}
	return fresh
}
