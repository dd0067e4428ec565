package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/magetools/grimorium/vectorstore"
)

const (
	// DefaultTopK is the maximum number of matches one search returns.
	DefaultTopK = 5

	// DefaultThreshold is the inclusive distance cutoff for relevance.
	// Lower distance means more relevant.
	DefaultThreshold = 0.4

	// nearMissMargin is the band above the threshold reported in debug
	// mode, to make an overly strict threshold visible.
	nearMissMargin = 0.2
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// TopK caps the number of matches returned. Values below one fall
	// back to DefaultTopK.
	TopK int

	// Threshold is the inclusive distance cutoff. Zero falls back to
	// DefaultThreshold.
	Threshold float64

	// Debug enables near-miss reporting.
	Debug bool

	// Allowed restricts searches and access checks to the named
	// collections. Nil means unrestricted; an empty non-nil slice denies
	// everything.
	Allowed []string

	// MasterIndex overrides the master index collection name.
	MasterIndex string

	// Logger receives search diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Engine runs relevance searches against a vector store.
type Engine struct {
	store      vectorstore.Store
	topK       int
	threshold  float64
	debug      bool
	allowed    []string
	allowedSet map[string]bool
	masterName string
	logger     *zap.Logger
}

// New creates an Engine over the given store.
func New(store vectorstore.Store, opts Options) *Engine {
	e := &Engine{
		store:      store,
		topK:       opts.TopK,
		threshold:  opts.Threshold,
		debug:      opts.Debug,
		allowed:    opts.Allowed,
		masterName: opts.MasterIndex,
		logger:     opts.Logger,
	}
	if e.topK < 1 {
		e.topK = DefaultTopK
	}
	if e.threshold == 0 {
		e.threshold = DefaultThreshold
	}
	if e.masterName == "" {
		e.masterName = "grimoriums_index"
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if opts.Allowed != nil {
		e.allowedSet = make(map[string]bool, len(opts.Allowed))
		for _, name := range opts.Allowed {
			e.allowedSet[name] = true
		}
	}
	return e
}

type match struct {
	id       string
	distance float64
}

// CollectionMatch is one master-index hit.
type CollectionMatch struct {
	// ID is the collection's id.
	ID string

	// Description is the collection's indexed description document.
	Description string

	// Distance is the match's dissimilarity score.
	Distance float64

	// Metadata carries the collection's content hash and spell count.
	Metadata vectorstore.Metadata
}

// SearchAll finds the spells matching the query across every accessible
// collection. The master index is never searched here; it holds collection
// descriptions, not spells. Results are qualified spell ids, best first,
// at most top-k.
func (e *Engine) SearchAll(ctx context.Context, query string) []string {
	if strings.TrimSpace(query) == "" {
		e.logger.Error("rejecting empty search query")
		return nil
	}

	e.logger.Info("searching for spells", zap.String("query", clip(query, 50)))

	names, err := e.store.List(ctx)
	if err != nil {
		e.logger.Error("failed to list collections", zap.Error(err))
		return nil
	}

	var all []match
	for _, name := range names {
		if name == e.masterName {
			continue
		}
		if e.allowedSet != nil && !e.allowedSet[name] {
			continue
		}

		coll, err := e.store.Get(ctx, name)
		if err != nil {
			e.logger.Warn("failed to open collection",
				zap.String("collection", name),
				zap.Error(err),
			)
			continue
		}
		result, err := coll.Query(ctx, query, e.topK)
		if err != nil {
			e.logger.Warn("failed to search collection",
				zap.String("collection", name),
				zap.Error(err),
			)
			continue
		}
		for i, id := range result.IDs {
			all = append(all, match{id: id, distance: result.Distances[i]})
		}
	}

	ranked := rank(all)
	if len(ranked) > 0 {
		e.logger.Debug("matches before filtering", zap.String("matches", formatMatches(ranked)))
	}

	var ids []string
	for _, m := range ranked {
		if m.distance <= e.threshold {
			ids = append(ids, m.id)
		}
	}
	if e.debug {
		e.reportNearMisses(ranked)
	}
	if len(ids) > e.topK {
		ids = ids[:e.topK]
	}
	return ids
}

// SearchMaster finds the collections whose descriptions match the query.
func (e *Engine) SearchMaster(ctx context.Context, query string) []CollectionMatch {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	e.logger.Info("searching for collections", zap.String("query", clip(query, 50)))

	master, err := e.store.GetOrCreate(ctx, e.masterName)
	if err != nil {
		e.logger.Error("failed to open master index", zap.Error(err))
		return nil
	}
	result, err := master.Query(ctx, query, e.topK)
	if err != nil {
		e.logger.Error("failed to search master index", zap.Error(err))
		return nil
	}

	var matches []CollectionMatch
	for i, id := range result.IDs {
		if result.Distances[i] > e.threshold {
			continue
		}
		matches = append(matches, CollectionMatch{
			ID:          id,
			Description: result.Documents[i],
			Distance:    result.Distances[i],
			Metadata:    result.Metadatas[i],
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches
}

// SearchWithin finds the spells matching the query inside one collection.
// A collection outside the allowed list yields no matches.
func (e *Engine) SearchWithin(ctx context.Context, collection, query string) []string {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if e.allowedSet != nil && !e.allowedSet[collection] {
		e.logger.Warn("access denied to collection", zap.String("collection", collection))
		return nil
	}

	coll, err := e.store.Get(ctx, collection)
	if err != nil {
		e.logger.Error("failed to open collection",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil
	}
	result, err := coll.Query(ctx, query, e.topK)
	if err != nil {
		e.logger.Error("failed to search collection",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil
	}

	var ids []string
	for i, id := range result.IDs {
		if result.Distances[i] <= e.threshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// Accessible reports whether the spell id is reachable under the allowed
// list: unrestricted engines allow everything, restricted engines require
// the id to exist in at least one allowed collection. Lookup failures count
// as unreachable.
func (e *Engine) Accessible(ctx context.Context, spellID string) bool {
	if e.allowedSet == nil {
		return true
	}

	for _, name := range e.allowed {
		coll, err := e.store.Get(ctx, name)
		if err != nil {
			continue
		}
		got, err := coll.Get(ctx, []string{spellID})
		if err != nil {
			continue
		}
		if len(got.IDs) > 0 {
			return true
		}
	}

	e.logger.Warn("access denied: spell not in any allowed collection",
		zap.String("spell", spellID),
		zap.Strings("allowed", e.allowed),
	)
	return false
}

// rank deduplicates matches to their best distance and orders them best
// first, with the id as a deterministic tiebreaker.
func rank(all []match) []match {
	best := make(map[string]float64, len(all))
	for _, m := range all {
		if d, ok := best[m.id]; !ok || m.distance < d {
			best[m.id] = m.distance
		}
	}
	ranked := make([]match, 0, len(best))
	for id, d := range best {
		ranked = append(ranked, match{id: id, distance: d})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

func (e *Engine) reportNearMisses(ranked []match) {
	var near []match
	for _, m := range ranked {
		if m.distance > e.threshold && m.distance <= e.threshold+nearMissMargin {
			near = append(near, m)
		}
	}
	if len(near) > 0 {
		e.logger.Info("near-miss spells just above threshold", zap.String("matches", formatMatches(near)))
	}
}

func formatMatches(matches []match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("%s=%.3f", m.id, m.distance)
	}
	return strings.Join(parts, ", ")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
