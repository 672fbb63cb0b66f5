package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"mailsync_worker/core/port/out"
)

// =============================================================================
// Neo4j Thread Embedding Store
// =============================================================================

const (
	threadEmbeddingIndex = "thread_embedding_index"

	// DefaultEmbeddingDimensions matches the default Gemini embedding model.
	DefaultEmbeddingDimensions = 768
)

var errEmptyEmbedding = errors.New("thread id and embedding are required")

// ThreadEmbeddingAdapter implements out.EmbeddingStore with (:Thread) nodes
// carrying an indexed embedding property.
type ThreadEmbeddingAdapter struct {
	driver     neo4j.DriverWithContext
	dbName     string
	dimensions int
}

func NewThreadEmbeddingAdapter(driver neo4j.DriverWithContext, dbName string, dimensions int) *ThreadEmbeddingAdapter {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &ThreadEmbeddingAdapter{driver: driver, dbName: dbName, dimensions: dimensions}
}

var _ out.EmbeddingStore = (*ThreadEmbeddingAdapter)(nil)

// EnsureIndexes creates the vector index and lookup constraints.
func (a *ThreadEmbeddingAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	for _, query := range indexQueries(a.dimensions) {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func indexQueries(dimensions int) []string {
	return []string{
		`CREATE CONSTRAINT thread_id_unique IF NOT EXISTS FOR (t:Thread) REQUIRE t.id IS UNIQUE`,
		`CREATE INDEX thread_user_idx IF NOT EXISTS FOR (t:Thread) ON (t.user_id)`,
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS "+
			"FOR (t:Thread) ON (t.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			threadEmbeddingIndex, dimensions),
	}
}

// SetThreadEmbedding merges the thread node and replaces its embedding.
func (a *ThreadEmbeddingAdapter) SetThreadEmbedding(ctx context.Context, userID, threadRowID, providerThreadID string, embedding []float32) error {
	if threadRowID == "" || len(embedding) == 0 {
		return errEmptyEmbedding
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (t:Thread {id: $id})
		SET t.user_id = $userID,
			t.gmail_thread_id = $gmailThreadID,
			t.embedding = $embedding,
			t.updated_at = timestamp()
	`
	params := map[string]any{
		"id":            threadRowID,
		"userID":        userID,
		"gmailThreadID": providerThreadID,
		"embedding":     toFloat64s(embedding),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to store thread embedding: %w", err)
	}
	return nil
}

// toFloat64s widens the vector to the list type Cypher stores natively.
func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
