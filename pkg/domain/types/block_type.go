package types

import "fmt"

// BlockType is the kind of knowledge a memory block records
type BlockType string

const (
	BlockTypeFact     BlockType = "fact"
	BlockTypeEvidence BlockType = "evidence"
	BlockTypeStrategy BlockType = "strategy"
	BlockTypeRule     BlockType = "rule"
	BlockTypeQuestion BlockType = "question"
)

// AllBlockTypes returns all block types in context presentation order
func AllBlockTypes() []BlockType {
	return []BlockType{
		BlockTypeFact,
		BlockTypeEvidence,
		BlockTypeStrategy,
		BlockTypeRule,
		BlockTypeQuestion,
	}
}

// IsValid checks if the block type is valid
func (t BlockType) IsValid() bool {
	switch t {
	case BlockTypeFact,
		BlockTypeEvidence,
		BlockTypeStrategy,
		BlockTypeRule,
		BlockTypeQuestion:
		return true
	default:
		return false
	}
}

// Title returns the heading used when rendering blocks of this type
func (t BlockType) Title() string {
	switch t {
	case BlockTypeFact:
		return "Facts"
	case BlockTypeEvidence:
		return "Evidence"
	case BlockTypeStrategy:
		return "Strategy"
	case BlockTypeRule:
		return "Rules"
	case BlockTypeQuestion:
		return "Questions"
	default:
		return string(t)
	}
}

// String returns the string representation of the block type
func (t BlockType) String() string {
	return string(t)
}

// ParseBlockType parses a string into a BlockType
func ParseBlockType(s string) (BlockType, error) {
	t := BlockType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid block type: %s", s)
	}
	return t, nil
}

// ParseBlockTypes parses a list of strings, ignoring empty entries
func ParseBlockTypes(values []string) ([]BlockType, error) {
	var result []BlockType
	for _, v := range values {
		if v == "" {
			continue
		}
		t, err := ParseBlockType(v)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}
