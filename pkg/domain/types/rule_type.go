package types

import "fmt"

// RuleType is the kind of a legal reference record
type RuleType string

const (
	RuleTypeStatute        RuleType = "statute"
	RuleTypeProcedure      RuleType = "procedure"
	RuleTypeCaseLaw        RuleType = "case_law"
	RuleTypeInterpretation RuleType = "interpretation"
)

// AllRuleTypes returns all valid rule types
func AllRuleTypes() []RuleType {
	return []RuleType{
		RuleTypeStatute,
		RuleTypeProcedure,
		RuleTypeCaseLaw,
		RuleTypeInterpretation,
	}
}

// PrecedentRuleTypes returns the rule types searched by the vector retrieval path
func PrecedentRuleTypes() []RuleType {
	return []RuleType{RuleTypeCaseLaw, RuleTypeInterpretation}
}

// IsValid checks if the rule type is valid
func (t RuleType) IsValid() bool {
	switch t {
	case RuleTypeStatute,
		RuleTypeProcedure,
		RuleTypeCaseLaw,
		RuleTypeInterpretation:
		return true
	default:
		return false
	}
}

// String returns the string representation of the rule type
func (t RuleType) String() string {
	return string(t)
}

// ParseRuleType parses a string into a RuleType
func ParseRuleType(s string) (RuleType, error) {
	t := RuleType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid rule type: %s", s)
	}
	return t, nil
}
