// Package errors gives amanrag one structured error type.
//
// Codes read ERR_<number>_<NAME>. The hundreds digit is the category:
// 1 config, 2 persistence, 3 network, 4 validation, 5 internal.
package errors

type Category string

const (
	CategoryConfig      Category = "CONFIG"
	CategoryPersistence Category = "PERSISTENCE"
	CategoryNetwork     Category = "NETWORK"
	CategoryValidation  Category = "VALIDATION"
	CategoryInternal    Category = "INTERNAL"
)

// Severity tells the caller whether to abort, fail the operation, or carry
// on degraded.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

const (
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeNoEmbedder     = "ERR_104_NO_EMBEDDER"
	ErrCodeModelMismatch  = "ERR_107_MODEL_MISMATCH"

	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"
	ErrCodeFileCorrupt   = "ERR_206_FILE_CORRUPT"
	ErrCodePersistFailed = "ERR_207_PERSIST_FAILED"
	ErrCodeLockFailed    = "ERR_208_LOCK_FAILED"
	ErrCodeIndexMismatch = "ERR_209_INDEX_MISMATCH"

	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// classification is what New derives from a code.
type classification struct {
	category  Category
	severity  Severity
	retryable bool
}

// overrides lists codes whose severity or retry behaviour departs from
// the category default of SeverityError, not retryable.
var overrides = map[string]classification{
	ErrCodeNoEmbedder:         {severity: SeverityFatal},
	ErrCodeCorruptIndex:       {severity: SeverityFatal},
	ErrCodeIndexMismatch:      {severity: SeverityWarning},
	ErrCodeLockFailed:         {severity: SeverityWarning, retryable: true},
	ErrCodeNetworkTimeout:     {severity: SeverityWarning, retryable: true},
	ErrCodeNetworkUnavailable: {severity: SeverityWarning, retryable: true},
}

var categoryByDigit = map[byte]Category{
	'1': CategoryConfig,
	'2': CategoryPersistence,
	'3': CategoryNetwork,
	'4': CategoryValidation,
}

func classify(code string) classification {
	c, ok := overrides[code]
	if !ok {
		c.severity = SeverityError
	}
	c.category = CategoryInternal
	// "ERR_" is four bytes; the category digit follows.
	if len(code) > 4 {
		if cat, ok := categoryByDigit[code[4]]; ok {
			c.category = cat
		}
	}
	return c
}
