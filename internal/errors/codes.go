// Package errors provides the structured error type used across the
// knowledge-base engine: Io, Storage, Parse, InvalidInput,
// DocumentNotFound, ModelNotFound, Llm, Http, External, Database.
package errors

// Category classifies an error for dispatch and logging.
type Category string

const (
	CategoryIO         Category = "IO"
	CategoryStorage    Category = "STORAGE"
	CategoryParse      Category = "PARSE"
	CategoryValidation Category = "VALIDATION"
	CategoryNotFound   Category = "NOT_FOUND"
	CategoryLLM        Category = "LLM"
	CategoryHTTP       Category = "HTTP"
	CategoryExternal   Category = "EXTERNAL"
	CategoryDatabase   Category = "DATABASE"
)

// Severity indicates how a caller should react.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Error codes, one per error kind, plus the validation-layer codes
// for dimension mismatch and duplicate documents.
const (
	CodeIO                = "ERR_IO"
	CodeStorage           = "ERR_STORAGE"
	CodeParse             = "ERR_PARSE"
	CodeInvalidInput      = "ERR_INVALID_INPUT"
	CodeDocumentNotFound  = "ERR_DOCUMENT_NOT_FOUND"
	CodeModelNotFound     = "ERR_MODEL_NOT_FOUND"
	CodeLLM               = "ERR_LLM"
	CodeHTTP              = "ERR_HTTP"
	CodeExternal          = "ERR_EXTERNAL"
	CodeDatabase          = "ERR_DATABASE"
	CodeDimensionMismatch = "ERR_DIMENSION_MISMATCH"
	CodeDuplicateDocument = "ERR_DUPLICATE_DOCUMENT"
)

var categoryByCode = map[string]Category{
	CodeIO:                CategoryIO,
	CodeStorage:           CategoryStorage,
	CodeParse:             CategoryParse,
	CodeInvalidInput:      CategoryValidation,
	CodeDocumentNotFound:  CategoryNotFound,
	CodeModelNotFound:     CategoryNotFound,
	CodeLLM:               CategoryLLM,
	CodeHTTP:              CategoryHTTP,
	CodeExternal:          CategoryExternal,
	CodeDatabase:          CategoryDatabase,
	CodeDimensionMismatch: CategoryValidation,
	CodeDuplicateDocument: CategoryStorage,
}

func categoryFromCode(code string) Category {
	if c, ok := categoryByCode[code]; ok {
		return c
	}
	return CategoryExternal
}

var retryableCategories = map[Category]bool{
	CategoryHTTP:     true,
	CategoryLLM:      true,
	CategoryExternal: true,
}

// isRetryableCode reports whether the category this code maps to is one
// an external transport may retry. The core itself never retries;
// this only labels errors for the caller's own backoff policy.
func isRetryableCode(code string) bool {
	return retryableCategories[categoryFromCode(code)]
}

func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryDatabase, CategoryStorage:
		return SeverityFatal
	case CategoryLLM, CategoryHTTP, CategoryExternal:
		return SeverityWarning
	default:
		return SeverityError
	}
}
