// Package guidelines loads the style-rule corpus.
//
// A corpus comes from one of three places, in order of preference: a file
// named in the configuration (JSON or YAML), the snapshot cached by the last
// sync, or the snapshot bundled into the binary. Syncer refreshes the corpus
// from the knowledge-base proxy, fetching the guideline page text and the
// rule database in parallel.
package guidelines
