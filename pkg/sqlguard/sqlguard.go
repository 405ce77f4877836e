// Package sqlguard validates SQL text before it is proxied to a
// relational backend: single-statement enforcement, read/write
// classification, and injection screening of string parameters.
package sqlguard

import (
	"errors"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/proxylink-dev/proxylink/pkg/models"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL
	// statements; only single statements are proxied.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrEmptyStatement indicates there is no SQL to execute.
	ErrEmptyStatement = errors.New("empty SQL statement")

	// ErrClassMismatch indicates the statement's class does not match
	// the declared operation class (e.g. an UPDATE submitted as read).
	ErrClassMismatch = errors.New("statement class does not match declared operation class")
)

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// Validate normalizes the statement and checks it against the declared
// operation class:
//  1. Strip trailing semicolon and whitespace (normalize)
//  2. Reject multiple statements (remaining semicolons outside strings)
//  3. Classify the leading keyword and require it to match class
func Validate(sqlQuery string, class models.OpClass) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyStatement}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	if Classify(normalized) != class {
		return ValidationResult{Error: ErrClassMismatch}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// Classify returns the operation class of a single SQL statement based
// on its leading keyword. SELECT, WITH, SHOW, and EXPLAIN are read;
// everything else (DML, DDL, CALL, unknown) is write. Unknown leaning
// write keeps the read allow-list conservative.
func Classify(sqlQuery string) models.OpClass {
	fields := strings.Fields(strings.TrimSpace(sqlQuery))
	if len(fields) == 0 {
		return models.OpWrite
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "TABLE":
		return models.OpRead
	}
	return models.OpWrite
}

// InjectionCheckResult describes a parameter that failed the injection
// screen.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamIndex  int    // Position of the offending parameter
}

// CheckParams screens operation parameters with libinjection. Only
// string values are checked - numbers, booleans, and other types cannot
// carry SQL injection patterns. Returns one result per offending
// parameter; an empty slice means all parameters are clean.
func CheckParams(params []any) []InjectionCheckResult {
	var results []InjectionCheckResult
	for i, value := range params {
		strValue, ok := value.(string)
		if !ok {
			continue
		}
		isSQLi, fingerprint := libinjection.IsSQLi(strValue)
		if isSQLi {
			results = append(results, InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				ParamIndex:  i,
			})
		}
	}
	return results
}

// hasSemicolonOutsideStrings returns true if the SQL contains any
// semicolon outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handle both backslash escape (\') and SQL standard escape ('')
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes a trailing semicolon and surrounding
// whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
