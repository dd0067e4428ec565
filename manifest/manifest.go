// Package manifest loads per-collection policy files and decides which
// spells a collection admits.
//
// A manifest is a single JSON object named manifest.json inside a collection
// directory. A missing manifest is a valid state, not an error: the
// collection is fully open (subject to the scanner's strict mode). A manifest
// that fails to parse, or parses to something other than a JSON object, is
// also treated as absent so that one malformed policy file never aborts
// discovery.
package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// FileName is the policy file looked up inside each collection directory.
const FileName = "manifest.json"

// Manifest is the parsed policy for one collection. Unknown keys are ignored.
type Manifest struct {
	// Enabled gates the whole collection. Defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`

	// Whitelist, when present, is the only set of spell names admitted.
	// A nil slice means no whitelist; an empty slice admits nothing.
	Whitelist []string `json:"whitelist,omitempty"`

	// Blacklist names spells denied even when whitelisted.
	Blacklist []string `json:"blacklist,omitempty"`

	// Version is an opaque schema marker carried for forward compatibility.
	Version json.RawMessage `json:"version,omitempty"`
}

// IsEnabled reports whether the collection is enabled. Absent manifests and
// manifests without an "enabled" key are enabled.
func (m *Manifest) IsEnabled() bool {
	if m == nil || m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// Allows applies the admission rules to a spell name:
//
//  1. No manifest: allowed.
//  2. enabled == false: denied, regardless of any list.
//  3. A present whitelist must contain the name.
//  4. A blacklisted name is denied even if whitelisted.
func (m *Manifest) Allows(name string) bool {
	if m == nil {
		return true
	}
	if !m.IsEnabled() {
		return false
	}
	if m.Whitelist != nil && !contains(m.Whitelist, name) {
		return false
	}
	if contains(m.Blacklist, name) {
		return false
	}
	return true
}

// Load reads the manifest for a collection directory. It returns (nil, nil)
// when no manifest file exists, and (nil, err) when a file exists but is not
// a JSON object; callers log that error and proceed as if no manifest were
// present.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	// Reject non-object top-level values before decoding fields, so that
	// e.g. a bare array or string counts as absent rather than as an empty
	// policy.
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, errors.New("manifest is not a JSON object")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
