// Package embedstore is a file-backed vector store built on provider
// embeddings and brute-force cosine ranking.
//
// Each collection persists as its own directory of three artifacts: an
// entries JSONL file, a flat little-endian float32 vector file, and a small
// manifest tying the two together. The full collection is held in memory
// once opened; queries embed the query text and scan every stored vector,
// which is the right trade for collections of tool docs rather than web
// corpora.
//
// Writes rewrite the collection's artifacts atomically under a store-wide
// file lock, so concurrent processes sharing one spellbook directory cannot
// interleave partial writes. Reads are lock-free against the in-memory copy.
//
// Distances are cosine dissimilarity, 1 - similarity, in [0, 2].
package embedstore
