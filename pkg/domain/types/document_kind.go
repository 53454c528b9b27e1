package types

import "fmt"

// DocumentKind distinguishes documents supplied with a case from documents the pipeline generates
type DocumentKind string

const (
	DocumentKindUploaded  DocumentKind = "uploaded"
	DocumentKindGenerated DocumentKind = "generated"
)

// IsValid checks if the document kind is valid
func (k DocumentKind) IsValid() bool {
	return k == DocumentKindUploaded || k == DocumentKindGenerated
}

// DocumentType labels the purpose of a generated document
type DocumentType string

const (
	DocumentTypeStatementOfClaim DocumentType = "statement_of_claim"
	DocumentTypeHearingScript    DocumentType = "hearing_script"
	DocumentTypeLegalAdvice      DocumentType = "advice"
	DocumentTypeEvidence         DocumentType = "evidence"
)

// ParseDocumentKind parses a string into a DocumentKind
func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid document kind: %s", s)
	}
	return k, nil
}
