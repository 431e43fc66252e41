// Package config loads the backend's own configuration from environment
// variables and the indexing pipeline's settings.yaml from disk.
//
// The two are deliberately separate. Environment variables control the
// backend process (addresses, paths, timeouts, logging), while
// settings.yaml is owned by the GraphRAG indexer and shared with it; the
// backend only reads the llm and embeddings sections to know which
// inference server and models to use for search. SettingsSource serves the
// current settings snapshot and SettingsWatcher re-reads the file when it
// changes on disk.
package config
