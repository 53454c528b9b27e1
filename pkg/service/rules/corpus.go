package rules

import (
	_ "embed"
	"os"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

//go:embed corpus.toml
var defaultCorpus []byte

type corpusFile struct {
	Version       string              `toml:"version"`
	Jurisdiction  string              `toml:"jurisdiction"`
	DefaultSource string              `toml:"default_source"`
	Rules         []*model.StaticRule `toml:"rules"`
}

// Corpus is an immutable, in-memory set of jurisdiction rules searched by keyword.
// It needs no embedding service and is safe for concurrent use.
type Corpus struct {
	version      string
	jurisdiction string
	rules        []*model.StaticRule
	byID         map[string]*model.StaticRule
	categories   []string
}

// Default returns the built-in Minnesota conciliation court corpus
func Default() *Corpus {
	c, err := Parse(defaultCorpus)
	if err != nil {
		panic("built-in rule corpus is invalid: " + err.Error())
	}
	return c
}

// LoadFile reads a corpus from a TOML file
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read rule corpus", goerr.V("path", path))
	}
	c, err := Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load rule corpus", goerr.V("path", path))
	}
	return c, nil
}

// Parse decodes and validates a TOML corpus
func Parse(data []byte) (*Corpus, error) {
	var file corpusFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse rule corpus")
	}

	defaultSource := file.DefaultSource
	if defaultSource == "" {
		defaultSource = file.Jurisdiction
	}

	c := &Corpus{
		version:      file.Version,
		jurisdiction: file.Jurisdiction,
		rules:        make([]*model.StaticRule, 0, len(file.Rules)),
		byID:         make(map[string]*model.StaticRule, len(file.Rules)),
	}

	seenCategory := map[string]bool{}
	for i, r := range file.Rules {
		if r.ID == "" || r.Title == "" || r.Content == "" || r.Category == "" {
			return nil, goerr.Wrap(model.ErrValidation, "rule is missing id, title, content or category", goerr.V("index", i))
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, goerr.Wrap(model.ErrValidation, "duplicate rule id", goerr.V(model.RuleIDKey, r.ID))
		}
		if r.Source == "" {
			r.Source = defaultSource
		}

		c.rules = append(c.rules, r)
		c.byID[r.ID] = r
		if !seenCategory[r.Category] {
			seenCategory[r.Category] = true
			c.categories = append(c.categories, r.Category)
		}
	}

	return c, nil
}

func copyRule(r *model.StaticRule) *model.StaticRule {
	copied := *r
	if r.Metadata != nil {
		copied.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// Version identifies the corpus revision
func (c *Corpus) Version() string { return c.version }

// Jurisdiction names the jurisdiction the corpus covers
func (c *Corpus) Jurisdiction() string { return c.jurisdiction }

// Categories lists categories in corpus order
func (c *Corpus) Categories() []string {
	return append([]string(nil), c.categories...)
}

// All returns every rule in corpus order
func (c *Corpus) All() []*model.StaticRule {
	result := make([]*model.StaticRule, 0, len(c.rules))
	for _, r := range c.rules {
		result = append(result, copyRule(r))
	}
	return result
}

// Search returns rules whose id, title or content contains query, case-insensitively.
// A blank query matches nothing.
func (c *Corpus) Search(query string) []*model.StaticRule {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []*model.StaticRule{}
	}

	result := make([]*model.StaticRule, 0)
	for _, r := range c.rules {
		text := strings.ToLower(strings.Join([]string{r.ID, r.Title, r.Content}, " "))
		if strings.Contains(text, q) {
			result = append(result, copyRule(r))
		}
	}
	return result
}

// Get returns the rule with the given id
func (c *Corpus) Get(id string) (*model.StaticRule, error) {
	r, ok := c.byID[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "static rule not found", goerr.V(model.RuleIDKey, id))
	}
	return copyRule(r), nil
}

// ByCategory returns the rules of one category; unknown categories yield an empty list
func (c *Corpus) ByCategory(category string) []*model.StaticRule {
	result := make([]*model.StaticRule, 0)
	for _, r := range c.rules {
		if r.Category == category {
			result = append(result, copyRule(r))
		}
	}
	return result
}
