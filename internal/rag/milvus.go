package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert chunks")
	ErrQueryFailed      = errors.New("failed to query chunks")
	ErrSearchFailed     = errors.New("failed to search vectors")
	ErrMissingEmbedding = errors.New("milvus requires an embedding for every chunk")
)

// noPage marks a chunk without a page number; Milvus has no nullable scalars.
const noPage int64 = -1

var milvusOutputFields = []string{"id", "source_id", "source_title", "page_number", "chunk_index", "text", "embedding"}

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string
	Dimension      int // Must match the embedder's dimension

	// HNSW index parameters
	M              int
	EfConstruction int
}

// DefaultMilvusConfig returns default configuration, honoring MILVUS_ADDRESS
// and MILVUS_COLLECTION when set.
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	collection := os.Getenv("MILVUS_COLLECTION")
	if collection == "" {
		collection = "furrow_chunks"
	}

	return MilvusConfig{
		Address:        address,
		CollectionName: collection,
		Dimension:      1536,
		M:              16,
		EfConstruction: 256,
	}
}

// MilvusStore implements KnowledgeStore on a Milvus collection. Questions
// prefetch candidates through the HNSW index; final ranking still happens in
// the Retriever so every backend orders results identically.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the collection exists.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config}
	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return store, nil
}

func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if has {
		return m.client.LoadCollection(ctx, m.config.CollectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		Description:    "knowledge base chunks",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "source_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "source_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{Name: "page_number", DataType: entity.FieldTypeInt64},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(m.config.Dimension)},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Nearest prefetches the limit chunks closest to vector by cosine distance.
func (m *MilvusStore) Nearest(ctx context.Context, vector []float32, limit int, opts *SearchOptions) ([]KnowledgeChunk, error) {
	if len(vector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vector))
	}
	if limit < 1 {
		return []KnowledgeChunk{}, nil
	}

	expr := ""
	if opts != nil && len(opts.SourceIDs) > 0 {
		expr = inExpr("source_id", opts.SourceIDs)
	}

	// ef must be at least the number of requested neighbours.
	sp, err := entity.NewIndexHNSWSearchParam(max(64, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		expr,
		milvusOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []KnowledgeChunk{}, nil
	}
	if results[0].Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, results[0].Err)
	}
	if results[0].ResultCount == 0 {
		return []KnowledgeChunk{}, nil
	}
	return chunksFromColumns(results[0].Fields)
}

// Candidates returns every stored chunk; all Milvus rows carry an embedding.
// The Retriever uses Nearest instead.
func (m *MilvusStore) Candidates(ctx context.Context, opts *SearchOptions) ([]KnowledgeChunk, error) {
	return m.query(ctx, opts)
}

// Ordered returns up to limit chunks by title then index.
func (m *MilvusStore) Ordered(ctx context.Context, limit int, opts *SearchOptions) ([]KnowledgeChunk, error) {
	chunks, err := m.query(ctx, opts)
	if err != nil {
		return nil, err
	}
	sortByTitleAndIndex(chunks)
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (m *MilvusStore) query(ctx context.Context, opts *SearchOptions) ([]KnowledgeChunk, error) {
	// Query needs a non-empty filter.
	expr := "chunk_index >= 0"
	if opts != nil && len(opts.SourceIDs) > 0 {
		expr += " && " + inExpr("source_id", opts.SourceIDs)
	}

	columns, err := m.client.Query(ctx, m.config.CollectionName, nil, expr, milvusOutputFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return chunksFromColumns(columns)
}

// chunksFromColumns converts a column-oriented result set into chunks.
func chunksFromColumns(columns []entity.Column) ([]KnowledgeChunk, error) {
	var (
		ids, sourceIDs, titles, texts []string
		pages, indexes                []int64
		vectors                       [][]float32
	)
	for _, col := range columns {
		switch c := col.(type) {
		case *entity.ColumnVarChar:
			switch c.Name() {
			case "id":
				ids = c.Data()
			case "source_id":
				sourceIDs = c.Data()
			case "source_title":
				titles = c.Data()
			case "text":
				texts = c.Data()
			}
		case *entity.ColumnInt64:
			switch c.Name() {
			case "page_number":
				pages = c.Data()
			case "chunk_index":
				indexes = c.Data()
			}
		case *entity.ColumnFloatVector:
			vectors = c.Data()
		}
	}

	n := len(ids)
	for _, l := range []int{len(sourceIDs), len(titles), len(texts), len(pages), len(indexes)} {
		if l != n {
			return nil, fmt.Errorf("%w: column length mismatch", ErrQueryFailed)
		}
	}

	chunks := make([]KnowledgeChunk, n)
	for i := range n {
		chunks[i] = KnowledgeChunk{
			ID:          ids[i],
			SourceID:    sourceIDs[i],
			SourceTitle: titles[i],
			ChunkIndex:  int(indexes[i]),
			Text:        texts[i],
		}
		if pages[i] != noPage {
			p := int(pages[i])
			chunks[i].PageNumber = &p
		}
		if i < len(vectors) {
			chunks[i].Embedding = vectors[i]
		}
	}
	return chunks, nil
}

// Insert replaces chunks by ID. Every chunk must carry an embedding of the
// configured dimension.
func (m *MilvusStore) Insert(ctx context.Context, chunks []KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	sourceIDs := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	pages := make([]int64, len(chunks))
	indexes := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))

	for i, c := range chunks {
		if !c.HasEmbedding() {
			return fmt.Errorf("%w: chunk %s", ErrMissingEmbedding, c.ID)
		}
		if len(c.Embedding) != m.config.Dimension {
			return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(c.Embedding))
		}
		ids[i] = c.ID
		sourceIDs[i] = c.SourceID
		titles[i] = c.SourceTitle
		pages[i] = noPage
		if c.PageNumber != nil {
			pages[i] = int64(*c.PageNumber)
		}
		indexes[i] = int64(c.ChunkIndex)
		texts[i] = c.Text
		vectors[i] = c.Embedding
	}

	if err := m.client.Delete(ctx, m.config.CollectionName, "", inExpr("id", ids)); err != nil {
		return fmt.Errorf("%w: clearing previous versions: %v", ErrInsertFailed, err)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnVarChar("source_title", titles),
		entity.NewColumnInt64("page_number", pages),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, vectors),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// DeleteSources removes every chunk of the given sources.
func (m *MilvusStore) DeleteSources(ctx context.Context, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	if err := m.client.Delete(ctx, m.config.CollectionName, "", inExpr("source_id", sourceIDs)); err != nil {
		return fmt.Errorf("failed to delete sources: %w", err)
	}
	return nil
}

// ExistingSources reports which source IDs already have chunks.
func (m *MilvusStore) ExistingSources(ctx context.Context, sourceIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return existing, nil
	}
	for _, id := range sourceIDs {
		existing[id] = false
	}

	results, err := m.client.Query(ctx, m.config.CollectionName, nil, inExpr("source_id", sourceIDs), []string{"source_id"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	for _, column := range results {
		if column.Name() != "source_id" {
			continue
		}
		if varcharCol, ok := column.(*entity.ColumnVarChar); ok {
			for _, id := range varcharCol.Data() {
				existing[id] = true
			}
		}
	}
	return existing, nil
}

// Count returns the collection's row count.
func (m *MilvusStore) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.config.CollectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stats: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// inExpr builds a boolean `field in [...]` expression with quoted values.
func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}

var (
	_ KnowledgeStore = (*MilvusStore)(nil)
	_ NearestStore   = (*MilvusStore)(nil)
)
