package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/magetools/grimorium/fault"
	"github.com/magetools/grimorium/registry"
)

func writeFile(t *testing.T, root string, parts ...string) {
	t.Helper()
	content := parts[len(parts)-1]
	path := filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const fireballUnit = `
spell({name: "fireball", doc: "Casts fire"}, function(args) {
    return {damage: 8, target: args.target};
});
`

const frostUnit = `
spell({name: "frost", doc: "Freezes the target"}, function(args) {
    return "frozen";
});
`

func scan(t *testing.T, root string, strict bool) (*registry.Registry, Report) {
	t.Helper()
	reg := registry.New()
	report, err := Scan(context.Background(), root, reg, Options{Strict: strict})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return reg, report
}

func TestScanRegistersSpells(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js", fireballUnit)
	writeFile(t, root, "arcane", "frost.js", frostUnit)

	reg, report := scan(t, root, false)

	if reg.Len() != 2 {
		t.Fatalf("registered %d spells, want 2: %v", reg.Len(), reg.IDs())
	}
	if _, ok := reg.Get("arcane.fireball"); !ok {
		t.Error("arcane.fireball not registered")
	}
	if _, ok := reg.Get("arcane.frost"); !ok {
		t.Error("arcane.frost not registered")
	}
	if report.Registered != 2 || report.Collections != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestScanWhitelist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "spell_a.js", `spell({name: "spell_a", doc: "Casts fire"}, function(args) { return 1; });`)
	writeFile(t, root, "arcane", "spell_b.js", `spell({name: "spell_b", doc: "Other"}, function(args) { return 2; });`)
	writeFile(t, root, "arcane", "manifest.json", `{"whitelist": ["spell_a"]}`)

	reg, _ := scan(t, root, true)

	if reg.Len() != 1 {
		t.Fatalf("registered %d spells, want exactly 1: %v", reg.Len(), reg.IDs())
	}
	spell, ok := reg.Get("arcane.spell_a")
	if !ok {
		t.Fatal("arcane.spell_a not registered")
	}
	if spell.Invoke == nil {
		t.Error("registered spell has no invoke handle")
	}
}

func TestScanDisabledCollection(t *testing.T) {
	for _, strict := range []bool{true, false} {
		root := t.TempDir()
		writeFile(t, root, "arcane", "fire.js", fireballUnit)
		writeFile(t, root, "arcane", "manifest.json", `{"enabled": false}`)

		reg, report := scan(t, root, strict)
		if reg.Len() != 0 {
			t.Errorf("strict=%v: disabled collection registered %d spells", strict, reg.Len())
		}
		if report.SkippedCollections != 1 {
			t.Errorf("strict=%v: report = %+v", strict, report)
		}
	}
}

func TestScanStrictModeDefaultDeny(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ungoverned", "fire.js", fireballUnit)

	reg, report := scan(t, root, true)
	if reg.Len() != 0 {
		t.Fatalf("strict mode loaded %d spells from manifest-less collection", reg.Len())
	}
	if report.SkippedCollections != 1 {
		t.Errorf("report = %+v", report)
	}

	reg, _ = scan(t, root, false)
	if reg.Len() != 1 {
		t.Fatalf("lenient mode registered %d spells, want 1", reg.Len())
	}
}

func TestScanSyntaxErrorIsolated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "broken.js", `function (`)
	writeFile(t, root, "arcane", "fire.js", fireballUnit)

	reg, report := scan(t, root, false)
	if reg.Len() != 1 {
		t.Fatalf("registered %d spells, want 1 despite broken sibling", reg.Len())
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Kind != fault.SourceLoad {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestScanThrowingUnitIsolated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "angry.js", `throw new Error("boom");`)
	writeFile(t, root, "arcane", "fire.js", fireballUnit)

	reg, report := scan(t, root, false)
	if reg.Len() != 1 {
		t.Fatalf("registered %d spells, want 1 despite throwing sibling", reg.Len())
	}
	if len(report.Warnings) != 1 {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestScanMalformedManifestTreatedAsAbsent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js", fireballUnit)
	writeFile(t, root, "arcane", "manifest.json", `{`)

	// Lenient mode: malformed manifest behaves like no manifest at all.
	reg, report := scan(t, root, false)
	if reg.Len() != 1 {
		t.Errorf("registered %d spells, want 1", reg.Len())
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Kind != fault.ManifestParse {
		t.Errorf("warnings = %v", report.Warnings)
	}

	// Strict mode: no usable manifest means default deny.
	reg, _ = scan(t, root, true)
	if reg.Len() != 0 {
		t.Errorf("strict mode registered %d spells under malformed manifest", reg.Len())
	}
}

func TestScanSkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden", "fire.js", fireballUnit)
	writeFile(t, root, "_private", "fire.js", fireballUnit)
	writeFile(t, root, "arcane", "_helper.js", fireballUnit)
	writeFile(t, root, "arcane", ".draft.js", fireballUnit)
	writeFile(t, root, "arcane", "fire.js", fireballUnit)

	reg, _ := scan(t, root, false)
	if reg.Len() != 1 {
		t.Errorf("registered %d spells, want 1 (hidden entries must be ignored)", reg.Len())
	}
}

func TestScanNamespacesDoNotCollide(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js", fireballUnit)
	writeFile(t, root, "elemental", "fire.js", fireballUnit)

	reg, _ := scan(t, root, false)
	if reg.Len() != 2 {
		t.Fatalf("registered %d spells, want 2: %v", reg.Len(), reg.IDs())
	}
	if _, ok := reg.Get("arcane.fireball"); !ok {
		t.Error("arcane.fireball missing")
	}
	if _, ok := reg.Get("elemental.fireball"); !ok {
		t.Error("elemental.fireball missing")
	}
}

func TestScanCollectionOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js",
		`spell({name: "fireball", doc: "Casts fire", collection: "elemental"}, function(args) { return 1; });`)

	reg, _ := scan(t, root, false)
	spell, ok := reg.Get("arcane.fireball")
	if !ok {
		t.Fatal("qualified id must use the discovery directory, not the override")
	}
	if spell.Bucket() != "elemental" {
		t.Errorf("Bucket() = %q, want override %q", spell.Bucket(), "elemental")
	}
}

func TestScanMissingRoot(t *testing.T) {
	reg := registry.New()
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "ghost"), reg, Options{})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestInvokeRegisteredSpell(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js", fireballUnit)

	reg, _ := scan(t, root, false)
	spell, ok := reg.Get("arcane.fireball")
	if !ok {
		t.Fatal("arcane.fireball not registered")
	}

	result, err := spell.Invoke(context.Background(), map[string]any{"target": "goblin"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T, want map", result)
	}
	if m["target"] != "goblin" {
		t.Errorf("result = %v", m)
	}
	if n, ok := m["damage"].(int64); !ok || n != 8 {
		t.Errorf("damage = %v (%T)", m["damage"], m["damage"])
	}
}

func TestInvokeThrowReturnsError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "cursed.js",
		`spell({name: "cursed", doc: "Always fails"}, function(args) { throw new Error("curse"); });`)

	reg, _ := scan(t, root, false)
	spell, ok := reg.Get("arcane.cursed")
	if !ok {
		t.Fatal("arcane.cursed not registered")
	}
	if _, err := spell.Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected error from throwing spell")
	}
}

func TestInvokeCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "arcane", "fire.js", fireballUnit)

	reg, _ := scan(t, root, false)
	spell, _ := reg.Get("arcane.fireball")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := spell.Invoke(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
