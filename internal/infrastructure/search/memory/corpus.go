package memory

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedCorpus []byte

type Document struct {
	ID       string            `yaml:"id"`
	Text     string            `yaml:"text"`
	Metadata map[string]string `yaml:"metadata"`
}

type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadCorpus reads documents from a YAML file. An empty path returns the
// built-in demo corpus.
func LoadCorpus(path string) ([]Document, error) {
	raw := seedCorpus
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read corpus %s: %w", path, err)
		}
		raw = data
	}
	return ParseCorpus(raw)
}

func ParseCorpus(raw []byte) ([]Document, error) {
	var file corpusFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Documents))
	for i, doc := range file.Documents {
		if strings.TrimSpace(doc.ID) == "" {
			return nil, fmt.Errorf("parse corpus: document %d has no id", i)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("parse corpus: duplicate id %q", doc.ID)
		}
		seen[doc.ID] = struct{}{}
	}
	return file.Documents, nil
}
