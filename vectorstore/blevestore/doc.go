// Package blevestore is a keyword-matching vector store implementation built
// on Bleve's BM25 full-text ranking.
//
// It exists for environments without an embedding endpoint: documents are
// indexed as text and queries match on terms rather than meaning. BM25
// relevance scores are mapped onto the store's dissimilarity contract as
// 1/(1+score), so lower is still better and strong keyword matches land
// under the usual thresholds. The mapping is monotonic, not calibrated
// against embedding distances; deployments that switch store kinds may want
// a looser threshold here.
//
// Each collection persists as its own Bleve index directory under the store
// root.
package blevestore
