package types

import "errors"

// Sentinel errors for schemamap operations.
var (
	// ErrEmptyChain indicates a conditional mapping has no conditions.
	ErrEmptyChain = errors.New("condition chain is empty")

	// ErrChainTooLong indicates a chain exceeds MaxConditions.
	ErrChainTooLong = errors.New("condition chain exceeds maximum length")

	// ErrMisplacedTerminal indicates TERMINAL on a condition that is not last.
	ErrMisplacedTerminal = errors.New("TERMINAL join before end of chain")

	// ErrInvalidJoin indicates a join that is neither AND, OR nor TERMINAL.
	ErrInvalidJoin = errors.New("invalid join")

	// ErrInvalidOperator indicates an operator outside the grammar's fixed set.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrMissingField indicates a condition without a field path.
	ErrMissingField = errors.New("condition field is empty")

	// ErrDuplicateRuleID indicates two rules in one mapping set share an id.
	ErrDuplicateRuleID = errors.New("duplicate mapping rule id")

	// ErrMalformedExpression indicates an embedded rule expression does not
	// follow the IF (...) THEN [...] ELSE [NULL] grammar.
	ErrMalformedExpression = errors.New("malformed rule expression")

	// ErrParseFailure indicates a document could not be mapped back to a
	// mapping set with any confidence.
	ErrParseFailure = errors.New("document could not be parsed into a mapping set")

	// ErrFieldNotFound indicates a record path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrPathTooDeep indicates a record path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrCoercionFailed indicates type coercion failed.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrMappingSetNotFound indicates no stored mapping set has the given id.
	ErrMappingSetNotFound = errors.New("mapping set not found")

	// ErrDocumentTooLarge indicates an encoded document exceeds MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")

	// ErrRecordTooLarge indicates an encoded record exceeds MaxRecordSize.
	ErrRecordTooLarge = errors.New("data record exceeds maximum size")
)
