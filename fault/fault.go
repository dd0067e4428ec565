// Package fault defines the warning taxonomy shared by the discovery and
// synchronization pipelines.
//
// The engine favors availability over strict correctness: a bad source file,
// an unreachable index, or a failed summarization call never aborts the
// surrounding operation. Instead of suppressing those failures, aggregation
// steps collect them as Warnings so callers can inspect exactly what was
// skipped or degraded.
package fault

import "fmt"

// Kind classifies a recovered failure.
type Kind string

const (
	// ManifestParse indicates a manifest file that could not be parsed;
	// the collection is treated as having no manifest.
	ManifestParse Kind = "manifest_parse"

	// SourceLoad indicates a source file that failed its syntax pre-check
	// or threw during loading; the file is skipped.
	SourceLoad Kind = "source_load"

	// IndexQuery indicates a read against a collection index that failed;
	// the collection contributes no matches or no stored state.
	IndexQuery Kind = "index_query"

	// IndexWrite indicates an upsert into a collection index that failed;
	// the collection is skipped for this cycle.
	IndexWrite Kind = "index_write"

	// Summarization indicates a failed description generation; the
	// placeholder description is used instead.
	Summarization Kind = "summarization"

	// AccessEnumeration indicates the allow-list itself could not be
	// checked; access is denied (fail closed).
	AccessEnumeration Kind = "access_enumeration"
)

// Warning records one recovered failure within an aggregate operation.
type Warning struct {
	// Kind classifies the failure.
	Kind Kind

	// Collection is the collection id the failure belongs to, if known.
	Collection string

	// Path is the filesystem path involved, if any.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (w Warning) Error() string {
	switch {
	case w.Collection != "" && w.Path != "":
		return fmt.Sprintf("%s: collection %s: %s: %v", w.Kind, w.Collection, w.Path, w.Err)
	case w.Collection != "":
		return fmt.Sprintf("%s: collection %s: %v", w.Kind, w.Collection, w.Err)
	case w.Path != "":
		return fmt.Sprintf("%s: %s: %v", w.Kind, w.Path, w.Err)
	default:
		return fmt.Sprintf("%s: %v", w.Kind, w.Err)
	}
}

// Unwrap returns the underlying error.
func (w Warning) Unwrap() error {
	return w.Err
}
