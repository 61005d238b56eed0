package guidelines

import (
	"github.com/dshills/tonecheck/internal/cache"
)

// CacheKey is the cache entry holding the last synced corpus.
const CacheKey = "guidelines"

// Source names where a resolved corpus came from.
type Source string

const (
	SourceFile    Source = "file"
	SourceCache   Source = "cache"
	SourceBundled Source = "bundled"
)

// Resolve picks the corpus to review with: the explicit file when path is
// set, else the cached sync, else the bundled snapshot. A corrupt cache
// entry is ignored.
func Resolve(path string, c *cache.Cache) (Corpus, Source, error) {
	if path != "" {
		corpus, err := LoadFile(path)
		return corpus, SourceFile, err
	}
	if raw, ok := c.Get(CacheKey); ok {
		if corpus, err := Decode(raw); err == nil {
			return corpus, SourceCache, nil
		}
	}
	corpus, err := Bundled()
	return corpus, SourceBundled, err
}

// Save stores a synced corpus in the cache.
func Save(c *cache.Cache, corpus Corpus) error {
	raw, err := Encode(corpus)
	if err != nil {
		return err
	}
	return c.Put(CacheKey, raw)
}
