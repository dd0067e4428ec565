// Package contenthash computes deterministic digests over collection source
// trees and spell doc text.
//
// The same digest function backs two staleness checks: the collection-level
// hash that triggers description regeneration, and the per-spell doc hash
// that makes spell synchronization idempotent. Determinism is the contract:
// hashing identical content always yields an identical digest, independent of
// filesystem iteration order.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceExt is the file extension of eligible spell source files.
const SourceExt = ".js"

// Collection digests a collection directory: the sorted list of non-hidden
// source files, folding in each file's slash-separated relative path and raw
// bytes. Adding, removing, renaming, or modifying any source file changes the
// digest. Files that cannot be read are skipped so that one unreadable file
// does not abort hashing.
func Collection(dir string) string {
	files := SourceFiles(dir)

	h := sha256.New()
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			continue
		}
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Text digests a single string with the same function used for collections.
func Text(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SourceFiles returns the slash-separated relative paths of all eligible
// source files under dir, sorted. Hidden or private entries (names starting
// with "." or "_") are excluded, and such directories are not descended into.
func SourceFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == dir {
			return nil
		}
		if Hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(d.Name()) != SourceExt {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files
}

// Hidden reports whether a file or directory name carries the hidden or
// private prefix.
func Hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
