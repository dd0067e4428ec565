package blevestore

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"

	"github.com/magetools/grimorium/vectorstore"
)

// maxEnumeration bounds full-collection lookups; collections hold tool docs,
// not corpora.
const maxEnumeration = 10000

// record is the indexed shape of one entry.
type record struct {
	Document   string  `json:"document"`
	Name       string  `json:"name"`
	Hash       string  `json:"hash"`
	SpellCount float64 `json:"spell_count"`
}

type collection struct {
	name  string
	index bleve.Index
}

func (c *collection) Name() string { return c.name }

// Query runs a BM25 match query and maps scores to pseudo-distances.
func (c *collection) Query(ctx context.Context, text string, k int) (vectorstore.QueryResult, error) {
	if k < 1 {
		k = 1
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), k, 0, false)
	req.Fields = []string{"document", "name", "hash", "spell_count"}

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return vectorstore.QueryResult{}, fmt.Errorf("search %s: %w", c.name, err)
	}

	var out vectorstore.QueryResult
	for _, hit := range res.Hits {
		out.IDs = append(out.IDs, hit.ID)
		out.Distances = append(out.Distances, 1/(1+hit.Score))
		out.Documents = append(out.Documents, fieldString(hit.Fields, "document"))
		out.Metadatas = append(out.Metadatas, metadataFromFields(hit.Fields))
	}
	return out, nil
}

func (c *collection) Get(ctx context.Context, ids []string) (vectorstore.GetResult, error) {
	var req *bleve.SearchRequest
	if ids == nil {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), maxEnumeration, 0, false)
	} else {
		if len(ids) == 0 {
			return vectorstore.GetResult{}, nil
		}
		req = bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(ids), len(ids), 0, false)
	}
	req.Fields = []string{"name", "hash", "spell_count"}

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return vectorstore.GetResult{}, fmt.Errorf("get from %s: %w", c.name, err)
	}

	var out vectorstore.GetResult
	for _, hit := range res.Hits {
		out.IDs = append(out.IDs, hit.ID)
		out.Metadatas = append(out.Metadatas, metadataFromFields(hit.Fields))
	}
	return out, nil
}

// Upsert writes the entries as one Bleve batch.
func (c *collection) Upsert(ctx context.Context, ids []string, documents []string, metadatas []vectorstore.Metadata) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return vectorstore.ErrLengthMismatch
	}
	if len(ids) == 0 {
		return nil
	}

	batch := c.index.NewBatch()
	for i, id := range ids {
		err := batch.Index(id, record{
			Document:   documents[i],
			Name:       metadatas[i].Name,
			Hash:       metadatas[i].Hash,
			SpellCount: float64(metadatas[i].SpellCount),
		})
		if err != nil {
			return fmt.Errorf("batch %s: %w", id, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("upsert %d entries to %s: %w", len(ids), c.name, err)
	}
	return nil
}

func metadataFromFields(fields map[string]interface{}) vectorstore.Metadata {
	meta := vectorstore.Metadata{
		Name: fieldString(fields, "name"),
		Hash: fieldString(fields, "hash"),
	}
	if n, ok := fields["spell_count"].(float64); ok {
		meta.SpellCount = int(n)
	}
	return meta
}

func fieldString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}
