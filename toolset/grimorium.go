package toolset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/magetools/grimorium/config"
	"github.com/magetools/grimorium/discovery"
	"github.com/magetools/grimorium/provider"
	"github.com/magetools/grimorium/registry"
	"github.com/magetools/grimorium/search"
	"github.com/magetools/grimorium/spellsync"
	"github.com/magetools/grimorium/vectorstore"
	"github.com/magetools/grimorium/vectorstore/blevestore"
	"github.com/magetools/grimorium/vectorstore/embedstore"
)

// ErrNotInitialized is returned by operations invoked before Initialize.
var ErrNotInitialized = errors.New("grimorium not initialized: call Initialize first")

// Result statuses returned by the agent-facing operations.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// descriptionPreview caps the collection description included in discovery
// results; the full text stays in the index.
const descriptionPreview = 200

// Options overrides the components a Grimorium builds from its config.
type Options struct {
	// Store overrides the vector store built from config. The caller
	// keeps ownership of an injected store; Close will not close it.
	Store vectorstore.Store

	// Provider overrides the embedding/summarization provider built from
	// config. Same ownership rule as Store.
	Provider provider.Provider

	// Allowed restricts this instance to the named collections. Nil
	// means unrestricted.
	Allowed []string

	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Grimorium is the toolset facade over discovery, sync, search and
// execution.
type Grimorium struct {
	cfg    config.Config
	store  vectorstore.Store
	prov   provider.Provider
	sync   *spellsync.Synchronizer
	engine *search.Engine
	logger *zap.Logger

	ownsStore    bool
	ownsProvider bool

	mu          sync.Mutex
	reg         *registry.Registry
	initialized bool
}

// New wires a Grimorium from the given config. Nothing touches the
// filesystem or the store until Initialize.
func New(cfg config.Config, opts Options) (*Grimorium, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Grimorium{
		cfg:    cfg,
		prov:   opts.Provider,
		store:  opts.Store,
		logger: logger,
		reg:    registry.New(),
	}

	if g.prov == nil {
		g.prov = provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:       cfg.Provider.BaseURL,
			APIKey:        cfg.Provider.APIKey,
			EmbedModel:    cfg.Provider.EmbedModel,
			GenerateModel: cfg.Provider.GenerationModel,
		})
		g.ownsProvider = true
	}

	if g.store == nil {
		var err error
		switch cfg.Store.Kind {
		case config.StoreKeyword:
			g.store, err = blevestore.New(cfg.DBPath(), blevestore.Options{Logger: logger})
		default:
			g.store, err = embedstore.New(cfg.DBPath(), g.prov, embedstore.Options{Logger: logger})
		}
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		g.ownsStore = true
	}

	g.sync = spellsync.New(g.store, g.prov, cfg.MagetoolsRoot(), spellsync.Options{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	g.engine = search.New(g.store, search.Options{
		TopK:      cfg.TopSpells,
		Threshold: cfg.DistanceThreshold,
		Debug:     cfg.Debug,
		Allowed:   opts.Allowed,
		Logger:    logger,
	})

	return g, nil
}

// Initialize discovers spells, mirrors them into the indexes and refreshes
// the master index. It is idempotent; a second call rebuilds everything from
// the current filesystem state.
func (g *Grimorium) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg := registry.New()
	report, err := discovery.Scan(ctx, g.cfg.MagetoolsRoot(), reg, discovery.Options{
		Strict: g.cfg.Strict,
		Logger: g.logger,
	})
	if err != nil {
		return err
	}
	g.logger.Info("discovery complete",
		zap.Int("spells", report.Registered),
		zap.Int("warnings", len(report.Warnings)),
	)

	g.sync.SyncSpells(ctx, reg)
	g.sync.SyncCollectionsConcurrent(ctx)

	g.reg = reg
	g.initialized = true
	return nil
}

// Registry returns the currently discovered spells.
func (g *Grimorium) Registry() *registry.Registry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg
}

// GrimoriumInfo is one collection in a DiscoverGrimoriumsResult.
type GrimoriumInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// DiscoverGrimoriumsResult is the outcome of a collection discovery.
type DiscoverGrimoriumsResult struct {
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Grimoriums []GrimoriumInfo `json:"grimoriums,omitempty"`
	NextStep   string          `json:"next_step,omitempty"`
}

// DiscoverGrimoriums finds the collections relevant to a high-level goal.
func (g *Grimorium) DiscoverGrimoriums(ctx context.Context, query string) (DiscoverGrimoriumsResult, error) {
	if err := g.checkInitialized(); err != nil {
		return DiscoverGrimoriumsResult{}, err
	}

	matches := g.engine.SearchMaster(ctx, query)
	if len(matches) == 0 {
		return DiscoverGrimoriumsResult{
			Status:  StatusNotFound,
			Message: "No relevant grimoriums found.",
		}, nil
	}

	infos := make([]GrimoriumInfo, len(matches))
	for i, m := range matches {
		infos[i] = GrimoriumInfo{ID: m.ID, Description: preview(m.Description)}
	}
	return DiscoverGrimoriumsResult{
		Status:     StatusSuccess,
		Grimoriums: infos,
		NextStep:   "Use 'magetools_discover_spells(grimorium_id, query)' to find specific tools.",
	}, nil
}

// SpellInfo is one spell in a DiscoverSpellsResult.
type SpellInfo struct {
	Description string `json:"description"`
}

// DiscoverSpellsResult is the outcome of a spell discovery inside one
// collection.
type DiscoverSpellsResult struct {
	Status    string               `json:"status"`
	Message   string               `json:"message,omitempty"`
	Grimorium string               `json:"grimorium,omitempty"`
	Spells    map[string]SpellInfo `json:"spells,omitempty"`
}

// DiscoverSpells finds the spells matching the query inside one collection.
func (g *Grimorium) DiscoverSpells(ctx context.Context, grimoriumID, query string) (DiscoverSpellsResult, error) {
	if err := g.checkInitialized(); err != nil {
		return DiscoverSpellsResult{}, err
	}

	ids := g.engine.SearchWithin(ctx, grimoriumID, query)
	if len(ids) == 0 {
		return DiscoverSpellsResult{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("No spells found in %q matching %q.", grimoriumID, query),
		}, nil
	}

	reg := g.Registry()
	spells := make(map[string]SpellInfo, len(ids))
	for _, id := range ids {
		spell, ok := reg.Get(id)
		if !ok {
			continue
		}
		doc := spell.Doc
		if doc == "" {
			doc = "No description."
		}
		spells[id] = SpellInfo{Description: doc}
	}
	return DiscoverSpellsResult{
		Status:    StatusSuccess,
		Grimorium: grimoriumID,
		Spells:    spells,
	}, nil
}

// ExecuteSpellResult is the outcome of one spell execution.
type ExecuteSpellResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// ExecuteSpell runs a spell by its qualified id. Execution failures are
// reported in the result rather than as an error, so a misbehaving spell
// cannot take down the calling agent.
func (g *Grimorium) ExecuteSpell(ctx context.Context, spellID string, args map[string]any) (ExecuteSpellResult, error) {
	if err := g.checkInitialized(); err != nil {
		return ExecuteSpellResult{}, err
	}

	g.logger.Info("executing spell", zap.String("spell", spellID))

	if !g.engine.Accessible(ctx, spellID) {
		return ExecuteSpellResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Permission denied: spell %q is not in your allowed collections.", spellID),
		}, nil
	}

	spell, ok := g.Registry().Get(spellID)
	if !ok {
		return ExecuteSpellResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Spell %q not found. Did you search for it first?", spellID),
		}, nil
	}

	result, err := spell.Invoke(ctx, args)
	if err != nil {
		g.logger.Error("spell execution failed",
			zap.String("spell", spellID),
			zap.Error(err),
		)
		return ExecuteSpellResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Execution failed: %v", err),
		}, nil
	}
	return ExecuteSpellResult{Status: StatusSuccess, Result: result}, nil
}

// Close releases the components the Grimorium built itself. Injected stores
// and providers stay open.
func (g *Grimorium) Close(ctx context.Context) error {
	g.logger.Info("closing grimorium toolset")
	var firstErr error
	if g.ownsStore {
		if err := g.store.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if g.ownsProvider {
		if err := g.prov.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *Grimorium) checkInitialized() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return ErrNotInitialized
	}
	return nil
}

func preview(s string) string {
	if len(s) <= descriptionPreview {
		return s
	}
	return s[:descriptionPreview] + "..."
}
