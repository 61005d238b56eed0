package guidelines

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tonecheck/internal/review"
)

//go:embed data/guidelines.json
var bundled []byte

// Corpus is a rule-corpus snapshot. Timestamp is the sync time in Unix
// milliseconds.
type Corpus struct {
	PageText  string        `json:"pageText"`
	Rules     []review.Rule `json:"rules"`
	Timestamp int64         `json:"timestamp"`
}

// SyncedAt returns the snapshot time.
func (c Corpus) SyncedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// document is the on-disk corpus format shared by the bundled snapshot and
// corpus files.
type document struct {
	PageText string        `json:"pageText" yaml:"pageText"`
	SyncedAt time.Time     `json:"syncedAt" yaml:"syncedAt"`
	Rules    []review.Rule `json:"rules" yaml:"rules"`
}

func (d document) corpus() Corpus {
	c := Corpus{PageText: d.PageText, Rules: d.Rules}
	if !d.SyncedAt.IsZero() {
		c.Timestamp = d.SyncedAt.UnixMilli()
	}
	if c.Rules == nil {
		c.Rules = []review.Rule{}
	}
	return c
}

// Bundled returns the snapshot compiled into the binary.
func Bundled() (Corpus, error) {
	var d document
	if err := json.Unmarshal(bundled, &d); err != nil {
		return Corpus{}, fmt.Errorf("decoding bundled guidelines: %w", err)
	}
	return d.corpus(), nil
}

// LoadFile reads a corpus file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. Unknown fields are rejected.
func LoadFile(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("reading guidelines file: %w", err)
	}

	var d document
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return Corpus{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return Corpus{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return d.corpus(), nil
}

// WriteFile stores c in the file format LoadFile reads.
func WriteFile(path string, c Corpus) error {
	d := document{PageText: c.PageText, Rules: c.Rules}
	if c.Timestamp != 0 {
		d.SyncedAt = c.SyncedAt().UTC()
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(d)
	} else {
		data, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding guidelines: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Encode serialises a corpus for the cache.
func Encode(c Corpus) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding corpus: %w", err)
	}
	return string(data), nil
}

// Decode parses a cached corpus.
func Decode(s string) (Corpus, error) {
	var c Corpus
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Corpus{}, fmt.Errorf("decoding corpus: %w", err)
	}
	return c, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
