// Package discovery walks a grimorium root directory and populates a spell
// Registry.
//
// Each immediate, non-hidden subdirectory of the root is a collection. A
// collection may carry a manifest.json policy file; in strict mode a
// collection that contains source files but no manifest is skipped entirely,
// which is the engine's default-deny control for ungoverned code.
//
// Spell units are JavaScript files executed one per isolated VM, so files of
// the same name in different collections can never collide. A unit registers
// its spells explicitly at load time:
//
//	/** Casts a ball of fire at the target. */
//	spell({name: "fireball", doc: "Casts a ball of fire at the target."},
//	    function(args) {
//	        return {damage: 8, target: args.target};
//	    });
//
// The optional "collection" key on the definition overrides the sync bucket
// the spell is grouped under; the qualified id always uses the directory the
// spell was discovered in.
//
// Failures are isolated per item: a malformed manifest, a file that fails
// its syntax pre-check, or a unit that throws during load is recorded as a
// warning and never aborts the scan of sibling files or collections.
package discovery
