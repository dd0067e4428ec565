package spellsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/magetools/grimorium/contenthash"
	"github.com/magetools/grimorium/fault"
	"github.com/magetools/grimorium/provider"
	"github.com/magetools/grimorium/registry"
	"github.com/magetools/grimorium/vectorstore"
)

const (
	// MasterIndexName is the reserved collection holding one entry per
	// grimorium: its description document and staleness metadata.
	MasterIndexName = "grimoriums_index"

	// SummaryFileName is the cached description written next to a
	// collection's sources.
	SummaryFileName = "grimorium_summary.md"

	// DefaultConcurrency bounds the summaries in flight during a
	// concurrent collection sync.
	DefaultConcurrency = 5
)

// Options configures a Synchronizer. The zero value selects the defaults.
type Options struct {
	// MasterIndex overrides the master index collection name.
	MasterIndex string

	// Concurrency bounds parallel summary generation. Values below one
	// fall back to DefaultConcurrency.
	Concurrency int

	// Logger receives progress and warning events. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

// Synchronizer mirrors registry and filesystem state into the vector store.
type Synchronizer struct {
	store       vectorstore.Store
	provider    provider.Provider
	root        string
	masterName  string
	concurrency int
	logger      *zap.Logger
}

// New creates a Synchronizer over the given store, provider and grimorium
// root directory.
func New(store vectorstore.Store, prov provider.Provider, root string, opts Options) *Synchronizer {
	s := &Synchronizer{
		store:       store,
		provider:    prov,
		root:        root,
		masterName:  opts.MasterIndex,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if s.masterName == "" {
		s.masterName = MasterIndexName
	}
	if s.concurrency < 1 {
		s.concurrency = DefaultConcurrency
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// SpellReport summarizes one spell synchronization pass.
type SpellReport struct {
	// Upserted is the number of spell entries written.
	Upserted int

	// Skipped is the number of spells whose stored doc digest already
	// matched.
	Skipped int

	// Warnings lists per-bucket failures. A failed bucket leaves its
	// previous index contents untouched.
	Warnings []fault.Warning
}

// SyncSpells mirrors the Registry into per-bucket collections. Each spell's
// doc digest is compared against the stored metadata; only changed or new
// spells are written, as one batch per bucket. Bucket failures are isolated:
// one broken bucket never blocks the others.
func (s *Synchronizer) SyncSpells(ctx context.Context, reg *registry.Registry) SpellReport {
	var report SpellReport
	buckets := reg.ByBucket()
	if len(buckets) == 0 {
		return report
	}

	s.logger.Info("syncing spells", zap.Int("buckets", len(buckets)))

	for bucket, spells := range buckets {
		upserted, skipped, err := s.syncBucket(ctx, bucket, spells)
		if err != nil {
			report.Warnings = append(report.Warnings, fault.Warning{
				Kind:       fault.IndexWrite,
				Collection: bucket,
				Err:        err,
			})
			s.logger.Warn("failed to sync bucket",
				zap.String("bucket", bucket),
				zap.Error(err),
			)
			continue
		}
		report.Upserted += upserted
		report.Skipped += skipped
	}

	s.logger.Info("spell sync complete",
		zap.Int("upserted", report.Upserted),
		zap.Int("skipped", report.Skipped),
	)
	return report
}

func (s *Synchronizer) syncBucket(ctx context.Context, bucket string, spells []registry.Spell) (upserted, skipped int, err error) {
	coll, err := s.store.GetOrCreate(ctx, bucket)
	if err != nil {
		return 0, 0, fmt.Errorf("open collection: %w", err)
	}

	// Stored digests for diffing. An unreadable index degrades to a full
	// rewrite of the bucket, not a failure.
	existing := make(map[string]string)
	if got, err := coll.Get(ctx, nil); err == nil {
		for i, id := range got.IDs {
			existing[id] = got.Metadatas[i].Hash
		}
	}

	var ids, documents []string
	var metadatas []vectorstore.Metadata
	for _, spell := range spells {
		hash := contenthash.Text(spell.Doc)
		if existing[spell.ID] == hash {
			skipped++
			continue
		}
		ids = append(ids, spell.ID)
		documents = append(documents, spell.Doc)
		metadatas = append(metadatas, vectorstore.Metadata{Name: spell.ID, Hash: hash})
	}

	if len(ids) > 0 {
		if err := coll.Upsert(ctx, ids, documents, metadatas); err != nil {
			return 0, skipped, fmt.Errorf("upsert %d spells: %w", len(ids), err)
		}
		s.logger.Info("upserted spells",
			zap.String("bucket", bucket),
			zap.Int("count", len(ids)),
		)
	}
	if skipped > 0 {
		s.logger.Debug("skipped up-to-date spells",
			zap.String("bucket", bucket),
			zap.Int("count", skipped),
		)
	}
	return len(ids), skipped, nil
}

// CollectionReport summarizes one master-index synchronization pass.
type CollectionReport struct {
	// Upserted is the number of master-index entries written.
	Upserted int

	// Generated is the number of descriptions produced by the provider,
	// as opposed to reuse of the cached summary file.
	Generated int

	// Warnings lists recovered per-collection failures. A collection with
	// a failed summary still gets a placeholder entry.
	Warnings []fault.Warning
}

// masterEntry is one computed master-index record, pending the batched
// upsert.
type masterEntry struct {
	id        string
	doc       string
	meta      vectorstore.Metadata
	generated bool
}

// SyncCollections builds the master index serially: one entry per collection
// directory, description from the cached summary file when the content hash
// is unchanged, regenerated via the provider otherwise.
func (s *Synchronizer) SyncCollections(ctx context.Context) CollectionReport {
	return s.syncCollections(ctx, 1)
}

// SyncCollectionsConcurrent is SyncCollections with up to the configured
// concurrency limit of summaries in flight. Entries are still written as a
// single batched upsert after every worker has finished.
func (s *Synchronizer) SyncCollectionsConcurrent(ctx context.Context) CollectionReport {
	return s.syncCollections(ctx, s.concurrency)
}

func (s *Synchronizer) syncCollections(ctx context.Context, workers int) CollectionReport {
	var report CollectionReport

	master, err := s.store.GetOrCreate(ctx, s.masterName)
	if err != nil {
		report.Warnings = append(report.Warnings, fault.Warning{
			Kind: fault.IndexWrite,
			Err:  fmt.Errorf("open master index: %w", err),
		})
		return report
	}

	dirs, err := s.collectionDirs()
	if err != nil {
		report.Warnings = append(report.Warnings, fault.Warning{
			Kind: fault.IndexWrite,
			Path: s.root,
			Err:  err,
		})
		return report
	}
	if len(dirs) == 0 {
		return report
	}

	s.logger.Info("syncing collection metadata",
		zap.Int("collections", len(dirs)),
		zap.Int("workers", workers),
	)

	entries := make([]masterEntry, len(dirs))
	warnings := make([][]fault.Warning, len(dirs))

	// Permits bound the summaries in flight; results land in fixed slots
	// so the batched upsert is deterministic.
	permits := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, id := range dirs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			permits <- struct{}{}
			defer func() { <-permits }()
			entries[i], warnings[i] = s.processCollection(ctx, master, id)
		}(i, id)
	}
	wg.Wait()

	ids := make([]string, len(entries))
	documents := make([]string, len(entries))
	metadatas := make([]vectorstore.Metadata, len(entries))
	for i, e := range entries {
		ids[i] = e.id
		documents[i] = e.doc
		metadatas[i] = e.meta
		if e.generated {
			report.Generated++
		}
		report.Warnings = append(report.Warnings, warnings[i]...)
	}

	if err := master.Upsert(ctx, ids, documents, metadatas); err != nil {
		report.Warnings = append(report.Warnings, fault.Warning{
			Kind: fault.IndexWrite,
			Err:  fmt.Errorf("upsert master index: %w", err),
		})
		return report
	}
	report.Upserted = len(ids)

	s.logger.Info("collection metadata sync complete",
		zap.Int("upserted", report.Upserted),
		zap.Int("generated", report.Generated),
	)
	return report
}

// processCollection computes one master-index entry. Every failure degrades:
// an unreadable summary cache or a failed generation still yields an entry,
// with the placeholder description as the last resort.
func (s *Synchronizer) processCollection(ctx context.Context, master vectorstore.Collection, id string) (masterEntry, []fault.Warning) {
	var warnings []fault.Warning
	dir := filepath.Join(s.root, id)
	currentHash := contenthash.Collection(dir)

	var storedHash string
	if got, err := master.Get(ctx, []string{id}); err == nil && len(got.IDs) > 0 {
		storedHash = got.Metadatas[0].Hash
	}
	stale := storedHash != "" && storedHash != currentHash

	summaryPath := filepath.Join(dir, SummaryFileName)
	var description string
	if !stale {
		if data, err := os.ReadFile(summaryPath); err == nil {
			description = string(data)
		}
	}

	generated := false
	if description == "" || stale {
		if stale {
			s.logger.Info("collection summary is stale, regenerating", zap.String("collection", id))
		} else {
			s.logger.Info("generating collection summary", zap.String("collection", id))
		}

		if docs := extractDocs(dir, s.logger); len(docs) > 0 {
			summary, err := s.provider.Generate(ctx, summaryPrompt(id, docs))
			if err != nil {
				warnings = append(warnings, fault.Warning{
					Kind:       fault.Summarization,
					Collection: id,
					Err:        err,
				})
				s.logger.Warn("failed to generate summary",
					zap.String("collection", id),
					zap.Error(err),
				)
			} else {
				description = summary
				generated = true
				if werr := os.WriteFile(summaryPath, []byte(summary), 0o644); werr != nil {
					warnings = append(warnings, fault.Warning{
						Kind:       fault.Summarization,
						Collection: id,
						Path:       summaryPath,
						Err:        fmt.Errorf("cache summary: %w", werr),
					})
				}
			}
		}
	}

	if description == "" {
		description = "Collection of spells in " + id
	}

	return masterEntry{
		id:  id,
		doc: description,
		meta: vectorstore.Metadata{
			Name:       id,
			Hash:       currentHash,
			SpellCount: len(contenthash.SourceFiles(dir)),
		},
		generated: generated,
	}, warnings
}

// collectionDirs lists the non-hidden collection directories under the root,
// in name order.
func (s *Synchronizer) collectionDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate grimorium root %s: %w", s.root, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !contenthash.Hidden(e.Name()) {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
