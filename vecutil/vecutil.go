// Package vecutil provides a Pinecone-style document API on top of a table
// and an Index: upsert text with metadata, delete by id, query by text.
package vecutil

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	gojson "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/viant/vecindex"
	"github.com/viant/vecindex/query"
	"github.com/viant/vecindex/table"
	"github.com/viant/vecindex/vector"
)

// Document is a logical document. Meta is stored as a JSON column.
type Document struct {
	ID      string         `json:"id"`
	Content string         `json:"content"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Match is a single similarity search hit. Score is a distance.
type Match struct {
	Document
	Score float64
}

// DocumentsDDL returns the schema Documents expects.
//
//	id        TEXT PRIMARY KEY
//	content   TEXT
//	meta      JSON
//	embedding VECTOR(dim)
func DocumentsDDL(name string, dim int) string {
	embedding := "VECTOR"
	if dim > 0 {
		embedding = fmt.Sprintf("VECTOR(%d)", dim)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id        TEXT PRIMARY KEY,
    content   TEXT,
    meta      JSON,
    embedding %s
)`, table.QuoteIdent(name), embedding)
}

// Documents stores text documents with their embeddings.
type Documents struct {
	table *table.Table
	embed vecindex.Embedder
	index *vecindex.Index
}

// NewDocuments creates the documents table when missing and binds it to the
// embedder. params configure Query.
func NewDocuments(ctx context.Context, db *sql.DB, name string, dim int, embed vecindex.Embedder, params query.Params, opts ...vecindex.Option) (*Documents, error) {
	if db == nil {
		return nil, fmt.Errorf("vecutil: db is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("vecutil: embedder is nil")
	}
	if _, err := db.ExecContext(ctx, DocumentsDDL(name, dim)); err != nil {
		return nil, fmt.Errorf("vecutil: create %s: %w", name, err)
	}
	tbl := table.New(db, name)
	ix, err := vecindex.NewIndex(tbl, embed, "id", params, opts...)
	if err != nil {
		return nil, err
	}
	return &Documents{table: tbl, embed: embed, index: ix}, nil
}

// Table returns the underlying table.
func (d *Documents) Table() *table.Table { return d.table }

// Upsert embeds every document's content and inserts or replaces the rows in
// one transaction. Embeddings are computed concurrently.
func (d *Documents) Upsert(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	blobs := make([][]byte, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range docs {
		g.Go(func() error {
			vec, err := d.embed.Embed(gctx, docs[i].Content)
			if err != nil {
				return fmt.Errorf("vecutil: embed %s: %w", docs[i].ID, err)
			}
			if blobs[i], err = vector.EncodeEmbedding(vec); err != nil {
				return fmt.Errorf("vecutil: embed %s: %w", docs[i].ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
INSERT INTO %s(id, content, meta, embedding)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  content = excluded.content,
  meta = excluded.meta,
  embedding = excluded.embedding`, table.QuoteIdent(d.table.Name()))
	tx, err := d.table.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		var meta any
		if doc.Meta != nil {
			data, err := gojson.Marshal(doc.Meta)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("vecutil: meta of %s: %w", doc.ID, err)
			}
			meta = string(data)
		}
		if _, err := tx.ExecContext(ctx, stmt, doc.ID, doc.Content, meta, blobs[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("vecutil: upsert %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes documents by id. Index triggers invalidate persisted
// indexes, which rebuild on the next approximate query.
func (d *Documents) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	encoded, err := gojson.Marshal(ids)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT value FROM json_each(?))", table.QuoteIdent(d.table.Name()))
	_, err = d.table.DB().ExecContext(ctx, stmt, string(encoded))
	return err
}

// Query returns the k documents nearest to text.
func (d *Documents) Query(ctx context.Context, text string, k int) ([]Match, error) {
	records, err := vecindex.TopN[Document](ctx, d.index, text, k)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(records))
	for _, record := range records {
		out = append(out, Match{Document: record.Payload, Score: record.Score})
	}
	return out, nil
}

// QueryIDs returns the ids of the k documents nearest to text.
func (d *Documents) QueryIDs(ctx context.Context, text string, k int) ([]string, error) {
	hits, err := d.index.TopNIDs(ctx, text, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	return ids, nil
}
