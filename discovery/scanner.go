package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/magetools/grimorium/contenthash"
	"github.com/magetools/grimorium/fault"
	"github.com/magetools/grimorium/manifest"
	"github.com/magetools/grimorium/registry"
)

// Options configures a scan.
type Options struct {
	// Strict requires a manifest.json before any collection's source files
	// are loaded. Default-deny: a collection with source files and no
	// manifest is skipped entirely.
	Strict bool

	// Logger receives per-item warnings. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Report summarizes one scan. Per-item failures never abort the scan; they
// are collected here and logged as they occur.
type Report struct {
	// Collections is the number of collection directories processed.
	Collections int

	// SkippedCollections counts collections skipped by the strict-mode
	// gate or by a disabled manifest.
	SkippedCollections int

	// Registered is the number of spells added to the Registry.
	Registered int

	// Warnings lists every recovered per-item failure.
	Warnings []fault.Warning
}

// Scan enumerates the collections under root and registers their admitted
// spells into reg. The returned error is non-nil only when root itself
// cannot be enumerated; everything below that is isolated per item.
func Scan(ctx context.Context, root string, reg *registry.Registry, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var report Report

	entries, err := os.ReadDir(root)
	if err != nil {
		return report, fmt.Errorf("cannot enumerate grimorium root %s: %w", root, err)
	}

	logger.Info("scanning for spells",
		zap.String("root", root),
		zap.Bool("strict", opts.Strict),
	)

	for _, entry := range entries {
		if !entry.IsDir() || contenthash.Hidden(entry.Name()) {
			continue
		}
		scanCollection(ctx, filepath.Join(root, entry.Name()), entry.Name(), reg, opts, logger, &report)
	}

	logger.Info("scan complete",
		zap.Int("collections", report.Collections),
		zap.Int("registered", report.Registered),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func scanCollection(ctx context.Context, dir, id string, reg *registry.Registry, opts Options, logger *zap.Logger, report *Report) {
	man, err := manifest.Load(dir)
	if err != nil {
		report.Warnings = append(report.Warnings, fault.Warning{
			Kind:       fault.ManifestParse,
			Collection: id,
			Path:       filepath.Join(dir, manifest.FileName),
			Err:        err,
		})
		logger.Warn("invalid manifest, treating collection as unmanaged",
			zap.String("collection", id),
			zap.Error(err),
		)
		man = nil
	}

	files := contenthash.SourceFiles(dir)

	if opts.Strict && man == nil {
		if len(files) > 0 {
			logger.Warn("skipping collection without manifest in strict mode",
				zap.String("collection", id),
				zap.Int("source_files", len(files)),
			)
			report.SkippedCollections++
		}
		return
	}

	if !man.IsEnabled() {
		logger.Info("skipping disabled collection", zap.String("collection", id))
		report.SkippedCollections++
		return
	}

	report.Collections++
	registered := 0

	for _, rel := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))

		candidates, err := loadUnit(ctx, path, logger)
		if err != nil {
			report.Warnings = append(report.Warnings, fault.Warning{
				Kind:       fault.SourceLoad,
				Collection: id,
				Path:       path,
				Err:        err,
			})
			logger.Warn("skipping spell unit",
				zap.String("collection", id),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		for _, c := range candidates {
			if !man.Allows(c.name) {
				logger.Debug("spell blocked by manifest",
					zap.String("collection", id),
					zap.String("spell", c.name),
				)
				continue
			}

			spell := registry.Spell{
				Collection:         id,
				Name:               c.name,
				Doc:                c.doc,
				CollectionOverride: c.collection,
				Invoke:             c.invoke,
			}
			if err := reg.Register(spell); err != nil {
				report.Warnings = append(report.Warnings, fault.Warning{
					Kind:       fault.SourceLoad,
					Collection: id,
					Path:       path,
					Err:        err,
				})
				logger.Warn("cannot register spell",
					zap.String("collection", id),
					zap.String("spell", c.name),
					zap.Error(err),
				)
				continue
			}
			registered++
			report.Registered++
		}
	}

	if registered > 0 {
		logger.Info("loaded collection",
			zap.String("collection", id),
			zap.Int("spells", registered),
		)
	}
}
