package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds one vector search, embedding included.
const searchTimeout = 10 * time.Second

const upsertDocumentSQL = `INSERT INTO documents (id, content, source, embedding, created_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (id) DO UPDATE
	SET content = EXCLUDED.content, source = EXCLUDED.source, embedding = EXCLUDED.embedding`

const searchDocumentsSQL = `SELECT content, source, 1 - (embedding <=> $1) AS score
	FROM documents
	ORDER BY embedding <=> $1
	LIMIT $2`

// Document is one indexable chunk of source material.
type Document struct {
	ID      string
	Content string
	Source  string
}

// DocumentStore persists document chunks with their embeddings in
// PostgreSQL + pgvector and serves ranked similarity search.
//
// DocumentStore is safe for concurrent use by multiple goroutines.
type DocumentStore struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *DocumentStore) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Upsert indexes one document chunk. An empty ID gets a fresh UUID.
func (s *DocumentStore) Upsert(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return fmt.Errorf("document content is empty")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, upsertDocumentSQL, doc.ID, doc.Content, doc.Source, vec); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}
	s.logger.Debug("indexed document", "id", doc.ID, "source", doc.Source, "content_length", len(doc.Content))
	return nil
}

// Retrieve implements Retriever using cosine similarity. Passages below
// scoreThreshold are dropped after ranking.
func (s *DocumentStore) Retrieve(ctx context.Context, query string, k int, scoreThreshold float64) ([]Passage, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, searchDocumentsSQL, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.Text, &p.Provenance, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if p.Score >= scoreThreshold {
			passages = append(passages, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return passages, nil
}
