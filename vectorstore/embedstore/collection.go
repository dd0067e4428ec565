package embedstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/magetools/grimorium/vectorstore"
)

const (
	manifestFile = "collection_manifest.json"
	entriesFile  = "entries.jsonl"
	vectorsFile  = "vectors.f32"
)

// collectionManifest describes a persisted collection and how to interpret
// its artifacts.
type collectionManifest struct {
	Version     int    `json:"version"`
	CreatedAt   string `json:"created_at"`
	Dim         int    `json:"dim"`
	EntriesFile string `json:"entries_file"`
	VectorFile  string `json:"vector_file"`
}

// entry is one row of the entries JSONL file. Its vector lives at the same
// position in the vector file.
type entry struct {
	ID        string               `json:"id"`
	Document  string               `json:"document"`
	Metadata  vectorstore.Metadata `json:"metadata"`
	UpdatedAt string               `json:"updated_at"`
}

// collection is an in-memory collection mirrored to its directory.
type collection struct {
	store *Store
	name  string
	dir   string

	mu      sync.RWMutex
	dim     int
	entries []entry
	vectors [][]float32
	byID    map[string]int
}

func newCollection(store *Store, name string) *collection {
	return &collection{
		store: store,
		name:  name,
		dir:   filepath.Join(store.dir, name),
		byID:  make(map[string]int),
	}
}

func (c *collection) Name() string { return c.name }

// Query embeds the query text and ranks every entry by cosine dissimilarity.
func (c *collection) Query(ctx context.Context, text string, k int) (vectorstore.QueryResult, error) {
	qv, err := c.store.embedder.Embed(ctx, text)
	if err != nil {
		return vectorstore.QueryResult{}, fmt.Errorf("embed query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	type scored struct {
		idx  int
		dist float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for i, vec := range c.vectors {
		sim, err := cosine(qv, vec)
		if err != nil {
			return vectorstore.QueryResult{}, fmt.Errorf("score %s: %w", c.entries[i].ID, err)
		}
		ranked = append(ranked, scored{idx: i, dist: distance(sim)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return c.entries[ranked[i].idx].ID < c.entries[ranked[j].idx].ID
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}

	var out vectorstore.QueryResult
	for _, s := range ranked {
		e := c.entries[s.idx]
		out.IDs = append(out.IDs, e.ID)
		out.Distances = append(out.Distances, s.dist)
		out.Documents = append(out.Documents, e.Document)
		out.Metadatas = append(out.Metadatas, e.Metadata)
	}
	return out, nil
}

func (c *collection) Get(ctx context.Context, ids []string) (vectorstore.GetResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out vectorstore.GetResult
	if ids == nil {
		for _, e := range c.entries {
			out.IDs = append(out.IDs, e.ID)
			out.Metadatas = append(out.Metadatas, e.Metadata)
		}
		return out, nil
	}
	for _, id := range ids {
		i, ok := c.byID[id]
		if !ok {
			continue
		}
		out.IDs = append(out.IDs, c.entries[i].ID)
		out.Metadatas = append(out.Metadatas, c.entries[i].Metadata)
	}
	return out, nil
}

// Upsert embeds the documents, replaces or appends the entries, and rewrites
// the collection's artifacts under the store lock.
func (c *collection) Upsert(ctx context.Context, ids []string, documents []string, metadatas []vectorstore.Metadata) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return vectorstore.ErrLengthMismatch
	}
	if len(ids) == 0 {
		return nil
	}

	vectors := make([][]float32, len(ids))
	for i, doc := range documents {
		vec, err := c.store.embedder.Embed(ctx, doc)
		if err != nil {
			return fmt.Errorf("embed %s: %w", ids[i], err)
		}
		vectors[i] = vec
	}

	unlock, err := c.store.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, id := range ids {
		if c.dim == 0 {
			c.dim = len(vectors[i])
		}
		if len(vectors[i]) != c.dim {
			return fmt.Errorf("embedding dim changed: got %d want %d", len(vectors[i]), c.dim)
		}
		e := entry{ID: id, Document: documents[i], Metadata: metadatas[i], UpdatedAt: now}
		if pos, ok := c.byID[id]; ok {
			c.entries[pos] = e
			c.vectors[pos] = vectors[i]
			continue
		}
		c.byID[id] = len(c.entries)
		c.entries = append(c.entries, e)
		c.vectors = append(c.vectors, vectors[i])
	}

	return c.save()
}

// save rewrites the collection's three artifacts. Called with the write lock
// and the store file lock held.
func (c *collection) save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cannot create collection dir %s: %w", c.dir, err)
	}

	manifest := collectionManifest{
		Version:     1,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Dim:         c.dim,
		EntriesFile: entriesFile,
		VectorFile:  vectorsFile,
	}
	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.dir, manifestFile), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}

	ef, err := os.Create(filepath.Join(c.dir, entriesFile))
	if err != nil {
		return fmt.Errorf("cannot create entries file: %w", err)
	}
	bw := bufio.NewWriter(ef)
	for _, e := range c.entries {
		line, err := json.Marshal(e)
		if err != nil {
			_ = ef.Close()
			return err
		}
		if _, err := bw.Write(line); err != nil {
			_ = ef.Close()
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			_ = ef.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = ef.Close()
		return err
	}
	if err := ef.Close(); err != nil {
		return err
	}

	flat := make([]float32, 0, len(c.vectors)*c.dim)
	for _, vec := range c.vectors {
		flat = append(flat, vec...)
	}
	vf, err := os.Create(filepath.Join(c.dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, flat); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return vf.Close()
}

// load reads the collection's artifacts from disk. A directory without a
// manifest loads as an empty collection.
func (c *collection) load() error {
	mb, err := os.ReadFile(filepath.Join(c.dir, manifestFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read manifest: %w", err)
	}
	var manifest collectionManifest
	if err := json.Unmarshal(mb, &manifest); err != nil {
		return fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if manifest.Dim <= 0 {
		return fmt.Errorf("invalid dim in manifest: %d", manifest.Dim)
	}
	if manifest.EntriesFile == "" {
		manifest.EntriesFile = entriesFile
	}
	if manifest.VectorFile == "" {
		manifest.VectorFile = vectorsFile
	}

	entries, err := loadEntries(filepath.Join(c.dir, manifest.EntriesFile))
	if err != nil {
		return err
	}
	vectors, err := loadVectors(filepath.Join(c.dir, manifest.VectorFile), len(entries), manifest.Dim)
	if err != nil {
		return err
	}

	c.dim = manifest.Dim
	c.entries = entries
	c.vectors = vectors
	c.byID = make(map[string]int, len(entries))
	for i, e := range entries {
		c.byID[e.ID] = i
	}
	return nil
}

func loadEntries(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open entries file %s: %w", path, err)
	}
	defer f.Close()

	var out []entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("invalid entries JSONL %s: %w", path, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read entries file %s: %w", path, err)
	}
	return out, nil
}

func loadVectors(path string, n, dim int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(n * dim * 4)
	if st.Size() != expected {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (entries=%d dim=%d)", st.Size(), expected, n, dim)
	}

	flat := make([]float32, n*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, flat); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}

	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = flat[i*dim : (i+1)*dim]
	}
	return out, nil
}
