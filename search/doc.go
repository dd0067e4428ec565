// Package search ranks spells and collections against natural-language
// queries.
//
// All searches share one relevance contract: matches are ordered by ascending
// distance, deduplicated to their best distance, filtered by an inclusive
// threshold, and capped at the top-k limit. The Engine's methods return match
// values without an error: an unreachable or missing collection contributes
// nothing to the result and is logged, because search degrades rather than
// fails.
//
// The Engine also carries the access guard. When an allowed-collection list
// is configured, SearchAll and SearchWithin silently restrict themselves to
// it, and Accessible answers whether a given spell id is reachable at all.
// The guard fails closed: when reachability cannot be proven, access is
// denied.
package search
