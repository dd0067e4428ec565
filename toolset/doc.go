// Package toolset assembles the engine's pieces into the Grimorium facade
// an agent host talks to.
//
// A Grimorium owns one registry, one vector store, one provider, one
// synchronizer and one search engine, wired from a config.Config. Initialize
// runs the full pipeline: discover spells from the filesystem, mirror them
// into the per-collection indexes, and refresh the master index of
// collection descriptions. After that the three agent-facing operations are
// available: DiscoverGrimoriums to pick a collection, DiscoverSpells to pick
// a spell inside it, and ExecuteSpell to run it.
//
// The same three operations are also exposed as MCP tool declarations via
// Tools, and as a line-delimited JSON-RPC surface via HandleRequest and
// ServeStdio for hosts that speak the protocol directly.
package toolset
