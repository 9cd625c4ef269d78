package domain

import "strings"

// MinQueryLen is the minimum number of characters in a usable query.
const MinQueryLen = 3

// ValidateDocument checks a SourceDocument before ingestion.
func ValidateDocument(doc SourceDocument) error {
	if strings.TrimSpace(doc.ID) == "" {
		return NewValidationError("id", doc.ID, ErrMissingID)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return NewValidationError("text", "", ErrEmptyDocument)
	}
	if doc.Domain != "" && !ValidDomains[doc.Domain] {
		return NewValidationError("domain", string(doc.Domain), ErrUnknownDomain)
	}
	return nil
}

// ValidateQuery checks a user query before classification or retrieval.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return NewValidationError("query", "", ErrEmptyQuery)
	}
	if len(q) < MinQueryLen {
		return NewValidationError("query", q, ErrQueryTooShort)
	}
	return nil
}
